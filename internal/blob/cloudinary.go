package blob

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wa-gateway/internal/media"
)

// CloudinaryStore uploads verified media bytes to Cloudinary using signed
// form requests.
type CloudinaryStore struct {
	cloudName string
	apiKey    string
	apiSecret string
	http      *http.Client
	now       func() time.Time
}

// NewCloudinaryStore constructs the store.
func NewCloudinaryStore(cloudName, apiKey, apiSecret string) *CloudinaryStore {
	return &CloudinaryStore{
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 60 * time.Second},
		now:       time.Now,
	}
}

var _ media.BlobStore = (*CloudinaryStore)(nil)

// Upload stores the bytes and returns the public location and storage id.
func (s *CloudinaryStore) Upload(ctx context.Context, data []byte, mimeType, folder string) (media.UploadResult, error) {
	if s.cloudName == "" || s.apiKey == "" || s.apiSecret == "" {
		return media.UploadResult{}, fmt.Errorf("blob store is not configured")
	}

	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/%s/upload", s.cloudName, resourceType(mimeType))
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	form := url.Values{}
	if folder != "" {
		form.Set("folder", folder)
	}
	form.Set("timestamp", timestamp)
	form.Set("signature", s.sign(signableParams(form)))
	form.Set("api_key", s.apiKey)
	form.Set("file", "data:"+mimeType+";base64,"+base64.StdEncoding.EncodeToString(data))

	var resp struct {
		PublicID  string `json:"public_id"`
		SecureURL string `json:"secure_url"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := s.post(ctx, endpoint, form, &resp); err != nil {
		return media.UploadResult{}, err
	}
	if resp.Error != nil {
		return media.UploadResult{}, fmt.Errorf("blob upload rejected: %s", resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return media.UploadResult{}, fmt.Errorf("blob upload returned no location")
	}
	return media.UploadResult{StorageID: resp.PublicID, PublicURL: resp.SecureURL}, nil
}

// Delete removes a stored object by its storage id.
func (s *CloudinaryStore) Delete(ctx context.Context, storageID string) (bool, error) {
	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", s.cloudName)
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	form := url.Values{}
	form.Set("public_id", storageID)
	form.Set("timestamp", timestamp)
	form.Set("signature", s.sign(signableParams(form)))
	form.Set("api_key", s.apiKey)

	var resp struct {
		Result string `json:"result"`
	}
	if err := s.post(ctx, endpoint, form, &resp); err != nil {
		return false, err
	}
	return resp.Result == "ok", nil
}

func (s *CloudinaryStore) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("blob response: %w", err)
	}
	return nil
}

// sign builds the request signature: sha1 of the sorted signable params
// concatenated with the API secret.
func (s *CloudinaryStore) sign(params string) string {
	sum := sha1.Sum([]byte(params + s.apiSecret))
	return hex.EncodeToString(sum[:])
}

// signableParams serializes params in sorted key order, excluding file,
// api_key and signature itself.
func signableParams(form url.Values) string {
	return form.Encode() // url.Values.Encode sorts by key
}

func resourceType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"), strings.HasPrefix(mimeType, "audio/"):
		return "video"
	default:
		return "raw"
	}
}
