// Package local implements storage.Provider against a plain filesystem
// tree, per spec §4.1's local backend specifics.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/vaultdrive/vaultdrive/bytelimit"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

const meterNamePrefix = "vaultdrive/storage/local"

var defaultFilePerm = os.FileMode(0664)
var defaultDirPerm = os.FileMode(0755)

// Provider is the local-filesystem backend. Object key layout and chunk
// layout follow spec §4.1 exactly so an operator can reason about the tree
// on disk without consulting the code.
type Provider struct {
	logger logr.Logger
	root   string

	// uploadBytesPerSec caps Save/UploadPart throughput; 0 disables it.
	uploadBytesPerSec float64

	bytesTransferred *int64

	sessionMu sync.Map // uploadID -> *sync.Mutex
}

// NewProvider roots a local backend at root, creating it if absent.
// uploadBytesPerSec caps upload throughput (config.StorageConfig's
// UploadBytesPerSecLimit); 0 leaves it unthrottled.
func NewProvider(root string, uploadBytesPerSec float64, logger logr.Logger) (p *Provider, err error) {
	if err = os.MkdirAll(root, defaultDirPerm); err != nil {
		return
	}
	p = &Provider{
		logger:            logger.WithName("storage.local"),
		root:              root,
		uploadBytesPerSec: uploadBytesPerSec,
		bytesTransferred:  new(int64),
	}
	if err = p.registerMeterCallback(); err != nil {
		return
	}
	return
}

func (p *Provider) objectPath(fileID string) string {
	prefix := fileID
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(p.root, prefix, fileID)
}

func (p *Provider) chunkDir(fileID, uploadID string) string {
	return filepath.Join(p.root, "_chunks", fileID, uploadID)
}

func (p *Provider) chunkPath(fileID, uploadID string, partNumber int32) string {
	return filepath.Join(p.chunkDir(fileID, uploadID), fmt.Sprintf("part_%d", partNumber))
}

func (p *Provider) sessionLock(uploadID string) *sync.Mutex {
	actual, _ := p.sessionMu.LoadOrStore(uploadID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (p *Provider) Save(ctx context.Context, ownerID, fileID string, stream io.Reader, maxSize int64) (actualBytes int64, err error) {
	objectPath := p.objectPath(fileID)
	if err = os.MkdirAll(filepath.Dir(objectPath), defaultDirPerm); err != nil {
		return
	}

	// write to a temp file in the same directory and rename into place so a
	// reader never observes a torn object.
	tmpPath := objectPath + ".tmp-" + uuid.NewString()
	var file *os.File
	if file, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm); err != nil {
		return
	}

	limited := bytelimit.New(stream, maxSize)
	limited.SetRateLimit(p.uploadBytesPerSec)
	actualBytes, err = io.Copy(file, limited)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	if err = os.Rename(tmpPath, objectPath); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	atomic.AddInt64(p.bytesTransferred, actualBytes)
	return
}

func (p *Provider) GetResponse(ctx context.Context, ownerID, fileID string, byteRange *storage.Range) (obj storage.RangedObject, err error) {
	objectPath := p.objectPath(fileID)
	var stat os.FileInfo
	if stat, err = os.Stat(objectPath); err != nil {
		if os.IsNotExist(err) {
			err = xfererr.New(xfererr.NotFound, "object not found")
		}
		return
	}

	var file *os.File
	if file, err = os.Open(objectPath); err != nil {
		return
	}

	size := stat.Size()
	if byteRange == nil || (byteRange.Start == 0 && byteRange.End == 0) {
		obj = storage.RangedObject{Reader: file, ContentLength: size}
		return
	}

	if byteRange.Start < 0 || byteRange.Start >= size {
		file.Close()
		err = xfererr.New(xfererr.BadChunkSet, "invalid byte range requested")
		return
	}
	// End == 0 means "to the end of the object" (storage.Range's doc
	// comment), since a real suffix-less range never ends at byte 0.
	end := byteRange.End
	if end == 0 {
		end = size - 1
	} else if end >= size || end < byteRange.Start {
		file.Close()
		err = xfererr.New(xfererr.BadChunkSet, "invalid byte range requested")
		return
	}
	if _, err = file.Seek(byteRange.Start, io.SeekStart); err != nil {
		file.Close()
		return
	}
	length := end - byteRange.Start + 1
	obj = storage.RangedObject{
		Reader:        &limitedReadCloser{LimitedReader: io.LimitReader(file, length), closer: file},
		ContentLength: length,
	}
	return
}

func (p *Provider) Delete(ctx context.Context, ownerID, fileID string) error {
	if err := os.Remove(p.objectPath(fileID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *Provider) Exists(ctx context.Context, ownerID, fileID string) (bool, error) {
	if _, err := os.Stat(p.objectPath(fileID)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Provider) InitiateMultipart(ctx context.Context, ownerID, fileID string) (uploadID string, err error) {
	uploadID = uuid.NewString()
	if err = os.MkdirAll(p.chunkDir(fileID, uploadID), defaultDirPerm); err != nil {
		uploadID = ""
	}
	return
}

func (p *Provider) UploadPart(ctx context.Context, ownerID, fileID, uploadID string, partNumber int32, stream io.Reader, maxSize int64) (up storage.UploadedPart, err error) {
	chunkPath := p.chunkPath(fileID, uploadID, partNumber)
	if err = os.MkdirAll(filepath.Dir(chunkPath), defaultDirPerm); err != nil {
		return
	}

	var file *os.File
	if file, err = os.OpenFile(chunkPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm); err != nil {
		return
	}
	defer file.Close()

	hasher := md5.New()
	limited := bytelimit.New(stream, maxSize)
	limited.SetRateLimit(p.uploadBytesPerSec)
	var n int64
	if n, err = io.Copy(io.MultiWriter(file, hasher), limited); err != nil {
		return
	}

	atomic.AddInt64(p.bytesTransferred, n)
	up = storage.UploadedPart{
		PartNumber:  partNumber,
		ETag:        hex.EncodeToString(hasher.Sum(nil)),
		ActualBytes: n,
	}
	return
}

func (p *Provider) CompleteMultipart(ctx context.Context, ownerID, fileID, uploadID string, parts []storage.Part) (err error) {
	lock := p.sessionLock(uploadID)
	lock.Lock()
	defer lock.Unlock()
	defer p.sessionMu.Delete(uploadID)

	sorted := make([]storage.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	objectPath := p.objectPath(fileID)
	if err = os.MkdirAll(filepath.Dir(objectPath), defaultDirPerm); err != nil {
		return
	}
	tmpPath := objectPath + ".tmp-" + uuid.NewString()
	var out *os.File
	if out, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm); err != nil {
		return
	}

	for _, part := range sorted {
		if err = p.appendChunk(out, fileID, uploadID, part); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return
		}
	}
	if err = out.Close(); err != nil {
		os.Remove(tmpPath)
		return
	}

	if err = os.Rename(tmpPath, objectPath); err != nil {
		os.Remove(tmpPath)
		return
	}

	os.RemoveAll(p.chunkDir(fileID, uploadID))
	return nil
}

func (p *Provider) appendChunk(out *os.File, fileID, uploadID string, part storage.Part) error {
	chunkPath := p.chunkPath(fileID, uploadID, part.PartNumber)
	chunkFile, err := os.Open(chunkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return xfererr.Newf(xfererr.BadChunkSet, "missing chunk for part %d", part.PartNumber)
		}
		return err
	}
	defer chunkFile.Close()

	hasher := md5.New()
	if _, err = io.Copy(io.MultiWriter(out, hasher), chunkFile); err != nil {
		return err
	}
	if hex.EncodeToString(hasher.Sum(nil)) != part.ETag {
		return xfererr.Newf(xfererr.BadChunkSet, "etag mismatch for part %d", part.PartNumber)
	}
	return nil
}

func (p *Provider) AbortMultipart(ctx context.Context, ownerID, fileID, uploadID string) error {
	lock := p.sessionLock(uploadID)
	lock.Lock()
	defer lock.Unlock()
	defer p.sessionMu.Delete(uploadID)

	if err := os.RemoveAll(p.chunkDir(fileID, uploadID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *Provider) registerMeterCallback() (err error) {
	meter := otel.GetMeterProvider().Meter(meterNamePrefix)
	var totalBytesTransferred metric.Int64ObservableCounter
	if totalBytesTransferred, err = meter.Int64ObservableCounter("bytes_transferred"); err != nil {
		return
	}
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(totalBytesTransferred, *p.bytesTransferred)
			return nil
		},
		totalBytesTransferred,
	)
	return
}

type limitedReadCloser struct {
	*io.LimitedReader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error { return l.closer.Close() }
