package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
)

var safeExtension = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// DiskStager writes attachments into a directory under generated names.
// The returned reference is the file name relative to that directory.
type DiskStager struct {
	dir string
}

func NewDiskStager(dir string) *DiskStager {
	return &DiskStager{dir: dir}
}

// Dir returns the directory attachments are written to.
func (s *DiskStager) Dir() string {
	return s.dir
}

// StageAttachment stores data and returns its generated file name. The
// extension comes from name, or from the sniffed content type when name
// has no usable one.
func (s *DiskStager) StageAttachment(_ context.Context, data []byte, name string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeStorage, "STAGING_ERROR", "failed to create upload directory")
	}

	filename := xid.New().String() + extensionFor(data, name)
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeStorage, "STAGING_ERROR", "failed to write attachment")
	}
	return filename, nil
}

func extensionFor(data []byte, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if safeExtension.MatchString(ext) {
		return ext
	}
	return mimetype.Detect(data).Extension()
}

// Gateway combines the badger store and the disk stager into the
// persistence gateway used by the message router.
type Gateway struct {
	*Store
	*DiskStager
}

func NewGateway(store *Store, stager *DiskStager) *Gateway {
	return &Gateway{Store: store, DiskStager: stager}
}
