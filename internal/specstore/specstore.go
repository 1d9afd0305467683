// Package specstore stores uploaded source specification documents in object
// storage. Keys are namespaced per org so scoped upload credentials can be
// issued for exactly one org's prefix.
package specstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/sts"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

type Config struct {
	Provider           string
	Endpoint           string
	Region             string
	Bucket             string
	BasePrefix         string
	AccessKeyID        string
	AccessKeySecret    string
	STSRoleARN         string
	STSDurationSeconds int
	LocalDir           string
}

// Store is the object-store surface the handlers need for spec documents.
type Store interface {
	Put(ctx context.Context, key string, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadCredentials are short-lived, write-only credentials scoped to one
// org's prefix, handed to clients that upload spec documents directly.
type UploadCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	SecurityToken   string `json:"security_token"`
	Expiration      string `json:"expiration"`

	Provider  string `json:"provider"`
	Bucket    string `json:"bucket"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	KeyPrefix string `json:"key_prefix"`
}

// CredentialIssuer mints scoped upload credentials.
type CredentialIssuer interface {
	IssueUploadCredentials(ctx context.Context, orgID uuid.UUID, durationSeconds int) (UploadCredentials, error)
}

// SpecObjectKey is the canonical key for a source's spec document.
func SpecObjectKey(orgID, sourceID uuid.UUID) string {
	return fmt.Sprintf("orgs/%s/sources/%s/spec.json", orgID, sourceID)
}

// OrgPrefix is the key prefix all of an org's objects live under.
func OrgPrefix(orgID uuid.UUID) string {
	return fmt.Sprintf("orgs/%s/", orgID)
}

func joinKey(basePrefix, key string) string {
	basePrefix = strings.Trim(strings.TrimSpace(basePrefix), "/")
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if basePrefix == "" {
		return key
	}
	if key == "" {
		return basePrefix
	}
	return basePrefix + "/" + key
}

func New(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		if strings.TrimSpace(cfg.LocalDir) == "" {
			return nil, errors.New("ACTIONCHAT_OSS_LOCAL_DIR is required when ACTIONCHAT_OSS_PROVIDER=local")
		}
		return localStore{root: cfg.LocalDir, basePrefix: cfg.BasePrefix}, nil
	case "aliyun":
		if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
			return nil, errors.New("missing object storage config for aliyun provider")
		}
		client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
		if err != nil {
			return nil, err
		}
		bucket, err := client.Bucket(cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return aliyunStore{bucket: bucket, basePrefix: cfg.BasePrefix}, nil
	default:
		return nil, errors.New("unsupported object storage provider (set ACTIONCHAT_OSS_PROVIDER=aliyun|local)")
	}
}

func NewCredentialIssuer(cfg Config) (CredentialIssuer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "local":
		return localIssuer{cfg: cfg}, nil
	case "aliyun":
		if cfg.Region == "" {
			return nil, errors.New("ACTIONCHAT_OSS_REGION is required when ACTIONCHAT_OSS_PROVIDER=aliyun")
		}
		if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.STSRoleARN == "" {
			return nil, errors.New("missing STS config (ACTIONCHAT_OSS_ACCESS_KEY_ID/SECRET + ACTIONCHAT_OSS_STS_ROLE_ARN)")
		}
		client, err := sts.NewClientWithAccessKey(cfg.Region, cfg.AccessKeyID, cfg.AccessKeySecret)
		if err != nil {
			return nil, err
		}
		return aliyunIssuer{client: client, cfg: cfg}, nil
	default:
		return nil, errors.New("unsupported object storage provider (set ACTIONCHAT_OSS_PROVIDER=aliyun|local)")
	}
}

type localStore struct {
	root       string
	basePrefix string
}

func (s localStore) Put(ctx context.Context, key string, contentType string, body []byte) error {
	_ = ctx
	_ = contentType
	p := filepath.Join(s.root, filepath.FromSlash(joinKey(s.basePrefix, key)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Best-effort atomic write.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s localStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	p := filepath.Join(s.root, filepath.FromSlash(joinKey(s.basePrefix, key)))
	return os.ReadFile(p)
}

func (s localStore) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	p := filepath.Join(s.root, filepath.FromSlash(joinKey(s.basePrefix, key)))
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

type aliyunStore struct {
	bucket     *oss.Bucket
	basePrefix string
}

func (s aliyunStore) Put(ctx context.Context, key string, contentType string, body []byte) error {
	_ = ctx
	opts := []oss.Option{}
	if strings.TrimSpace(contentType) != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	return s.bucket.PutObject(joinKey(s.basePrefix, key), bytes.NewReader(body), opts...)
}

func (s aliyunStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	rc, err := s.bucket.GetObject(joinKey(s.basePrefix, key))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s aliyunStore) Exists(ctx context.Context, key string) (bool, error) {
	_ = ctx
	return s.bucket.IsObjectExist(joinKey(s.basePrefix, key))
}

type localIssuer struct {
	cfg Config
}

func (s localIssuer) IssueUploadCredentials(ctx context.Context, orgID uuid.UUID, durationSeconds int) (UploadCredentials, error) {
	_ = ctx
	if durationSeconds <= 0 {
		durationSeconds = s.cfg.STSDurationSeconds
	}
	token, err := randomToken()
	if err != nil {
		return UploadCredentials{}, err
	}
	return UploadCredentials{
		Provider:        "local",
		AccessKeyID:     "local",
		AccessKeySecret: "local",
		SecurityToken:   token,
		Expiration:      time.Now().Add(time.Duration(durationSeconds) * time.Second).UTC().Format(time.RFC3339),
		Bucket:          s.cfg.Bucket,
		Endpoint:        s.cfg.Endpoint,
		Region:          s.cfg.Region,
		KeyPrefix:       joinKey(s.cfg.BasePrefix, OrgPrefix(orgID)),
	}, nil
}

type aliyunIssuer struct {
	client *sts.Client
	cfg    Config
}

func (s aliyunIssuer) IssueUploadCredentials(ctx context.Context, orgID uuid.UUID, durationSeconds int) (UploadCredentials, error) {
	_ = ctx // SDK doesn't take context; best-effort.
	if durationSeconds <= 0 {
		durationSeconds = s.cfg.STSDurationSeconds
	}
	prefix := joinKey(s.cfg.BasePrefix, OrgPrefix(orgID))
	policy, err := writeOnlyPolicy(s.cfg.Bucket, prefix)
	if err != nil {
		return UploadCredentials{}, err
	}

	req := sts.CreateAssumeRoleRequest()
	req.Scheme = "https"
	req.RoleArn = s.cfg.STSRoleARN
	req.RoleSessionName = "actionchat-upload-" + orgID.String()
	req.Policy = policy
	req.DurationSeconds = requests.NewInteger(durationSeconds)

	resp, err := s.client.AssumeRole(req)
	if err != nil {
		return UploadCredentials{}, err
	}
	if resp == nil || resp.Credentials.AccessKeyId == "" {
		return UploadCredentials{}, errors.New("sts assume role returned empty credentials")
	}
	return UploadCredentials{
		Provider:        "aliyun_sts",
		AccessKeyID:     resp.Credentials.AccessKeyId,
		AccessKeySecret: resp.Credentials.AccessKeySecret,
		SecurityToken:   resp.Credentials.SecurityToken,
		Expiration:      resp.Credentials.Expiration,
		Bucket:          s.cfg.Bucket,
		Endpoint:        s.cfg.Endpoint,
		Region:          s.cfg.Region,
		KeyPrefix:       prefix,
	}, nil
}

// writeOnlyPolicy allows PutObject under one prefix and nothing else.
func writeOnlyPolicy(bucket, prefix string) (string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return "", errors.New("missing bucket")
	}
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", errors.New("missing prefix")
	}

	type statement struct {
		Effect   string   `json:"Effect"`
		Action   []string `json:"Action"`
		Resource []string `json:"Resource"`
	}
	policy := map[string]any{
		"Version": "1",
		"Statement": []statement{{
			Effect:   "Allow",
			Action:   []string{"oss:PutObject"},
			Resource: []string{fmt.Sprintf("acs:oss:*:*:%s/%s*", bucket, prefix)},
		}},
	}
	b, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func randomToken() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
