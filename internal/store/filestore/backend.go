package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nibzard/ordo/internal/todo"
)

// Backend reads and writes the whole task file. A missing file loads as an
// empty one.
type Backend interface {
	Load(ctx context.Context) (*todo.File, error)
	Save(ctx context.Context, f *todo.File) error
	Location() string
}

// ObjectScheme prefixes task file locations kept in an object store.
const ObjectScheme = "minio://"

// Local keeps the task file on disk.
type Local struct {
	Path string
}

// Load implements Backend.
func (l Local) Load(_ context.Context) (*todo.File, error) {
	f, err := todo.Load(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return todo.NewFile(), nil
	}
	return f, err
}

// Save implements Backend.
func (l Local) Save(_ context.Context, f *todo.File) error {
	return f.Save(l.Path)
}

// Location implements Backend.
func (l Local) Location() string { return l.Path }

// Object keeps the task file as one object in an S3-compatible bucket.
type Object struct {
	client *minio.Client
	bucket string
	key    string
}

// NewObject returns a backend for bucket/key.
func NewObject(client *minio.Client, bucket, key string) *Object {
	return &Object{client: client, bucket: bucket, key: key}
}

// Load implements Backend.
func (o *Object) Load(ctx context.Context) (*todo.File, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, o.wrap("get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return todo.NewFile(), nil
		}
		return nil, o.wrap("read", err)
	}
	return todo.Decode(data)
}

// Save implements Backend.
func (o *Object) Save(ctx context.Context, f *todo.File) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = o.client.PutObject(ctx, o.bucket, o.key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return o.wrap("put", err)
	}
	return nil
}

// Location implements Backend.
func (o *Object) Location() string {
	return ObjectScheme + o.bucket + "/" + o.key
}

func (o *Object) wrap(op string, err error) error {
	return fmt.Errorf("%s %s: %w", op, o.Location(), err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Remote holds the object store connection settings.
type Remote struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// Open returns the backend for location: minio://bucket/key for an object
// store, anything else is a local path.
func Open(location string, remote Remote) (Backend, error) {
	rest, ok := strings.CutPrefix(location, ObjectScheme)
	if !ok {
		if location == "" {
			return nil, errors.New("task file location is empty")
		}
		return Local{Path: location}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("object location %q must look like %sbucket/key", location, ObjectScheme)
	}
	if remote.Endpoint == "" {
		return nil, fmt.Errorf("object location %q needs a remote endpoint", location)
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
	})
	if remote.AccessKey != "" {
		creds = credentials.NewStaticV4(remote.AccessKey, remote.SecretKey, "")
	}
	client, err := minio.New(remote.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: remote.Secure,
		Region: remote.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", remote.Endpoint, err)
	}
	return NewObject(client, bucket, key), nil
}

var _ Backend = Local{}
var _ Backend = (*Object)(nil)

// Missing reports whether the local task file does not exist yet.
func Missing(b Backend) bool {
	l, ok := b.(Local)
	if !ok {
		return false
	}
	_, err := os.Stat(l.Path)
	return errors.Is(err, fs.ErrNotExist)
}
