package volume

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/JamesLinus/livre/blobstore"
	"github.com/JamesLinus/livre/lod"
	"github.com/JamesLinus/livre/resource"
)

// Block container format, little-endian:
//
//	header  magic "LIVB" | version u16 | sampleType u8 | pad u8 |
//	        channels u32 | blockSize 3*u32 | rootGrid 3*u32 | levels u32 |
//	        worldSize 3*f32 | blockCount u64
//	index   blockCount * (id u64 | offset u64 | storedLen u32 |
//	        rawLen u32 | codec u8)
//	data    payloads at absolute offsets
const (
	blockFileMagic   = "LIVB"
	blockFileVersion = 1

	headerSize     = 60
	indexEntrySize = 25
)

// ErrBadFormat is returned for a malformed or truncated dataset blob.
var ErrBadFormat = errors.New("volume: bad block file")

type indexEntry struct {
	offset    uint64
	storedLen uint32
	rawLen    uint32
	codec     Codec
}

// Writer assembles a block container in memory. Datasets are written once
// by conversion tools and immutable afterwards.
type Writer struct {
	info    VolumeInformation
	codec   Codec
	index   map[lod.NodeID]indexEntry
	order   []lod.NodeID
	payload bytes.Buffer
}

// NewWriter creates a writer for a dataset with the given metadata.
// Every added block is compressed with codec (with a per-block fallback to
// uncompressed storage when compression does not help).
func NewWriter(info VolumeInformation, codec Codec) (*Writer, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		info:  info,
		codec: codec,
		index: make(map[lod.NodeID]indexEntry),
	}, nil
}

// Add appends the decoded samples of one block.
func (w *Writer) Add(id lod.NodeID, samples []byte) error {
	tree, err := w.info.Tree()
	if err != nil {
		return err
	}
	if !tree.Contains(id) {
		return fmt.Errorf("volume: %s outside dataset hierarchy", id)
	}
	if int64(len(samples)) != w.info.BlockBytes() {
		return fmt.Errorf("volume: block %s has %d bytes, want %d", id, len(samples), w.info.BlockBytes())
	}
	if _, dup := w.index[id]; dup {
		return fmt.Errorf("volume: duplicate block %s", id)
	}

	stored, codec, err := compressBlock(samples, w.codec)
	if err != nil {
		return err
	}
	w.index[id] = indexEntry{
		offset:    uint64(w.payload.Len()), // relative; made absolute in Bytes
		storedLen: uint32(len(stored)),
		rawLen:    uint32(len(samples)),
		codec:     codec,
	}
	w.order = append(w.order, id)
	w.payload.Write(stored)
	return nil
}

// Bytes serializes the container.
func (w *Writer) Bytes() []byte {
	dataStart := uint64(headerSize + len(w.order)*indexEntrySize)

	buf := make([]byte, 0, int(dataStart)+w.payload.Len())
	buf = append(buf, blockFileMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, blockFileVersion)
	buf = append(buf, byte(w.info.SampleType), 0)
	buf = binary.LittleEndian.AppendUint32(buf, w.info.Channels)
	for i := 0; i < 3; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, w.info.BlockSize[i])
	}
	for i := 0; i < 3; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, w.info.RootGrid[i])
	}
	buf = binary.LittleEndian.AppendUint32(buf, w.info.Levels)
	for i := 0; i < 3; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(w.info.WorldSize[i]))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(w.order)))

	for _, id := range w.order {
		e := w.index[id]
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		buf = binary.LittleEndian.AppendUint64(buf, dataStart+e.offset)
		buf = binary.LittleEndian.AppendUint32(buf, e.storedLen)
		buf = binary.LittleEndian.AppendUint32(buf, e.rawLen)
		buf = append(buf, byte(e.codec))
	}

	return append(buf, w.payload.Bytes()...)
}

// WriteTo stores the serialized container as a named blob.
func (w *Writer) WriteTo(ctx context.Context, store blobstore.BlobStore, name string) error {
	return store.Put(ctx, name, w.Bytes())
}

// BlockFile reads a block container from a blobstore and implements
// DataSource. LoadBlock is safe for concurrent use by decode workers.
type BlockFile struct {
	info  VolumeInformation
	index map[lod.NodeID]indexEntry
	blob  blobstore.Blob
	rc    *resource.Controller
}

// BlockFileOption configures OpenBlockFile.
type BlockFileOption func(*BlockFile)

// WithController attaches a resource controller; block reads then respect
// its backend I/O rate limit.
func WithController(rc *resource.Controller) BlockFileOption {
	return func(f *BlockFile) { f.rc = rc }
}

// OpenBlockFile opens a dataset blob and reads its header and index.
// The blob stays open for block reads until Close.
func OpenBlockFile(ctx context.Context, store blobstore.BlobStore, name string, opts ...BlockFileOption) (*BlockFile, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	f := &BlockFile{blob: blob, index: make(map[lod.NodeID]indexEntry)}
	for _, opt := range opts {
		opt(f)
	}

	if err := f.readHeader(); err != nil {
		blob.Close()
		return nil, err
	}
	return f, nil
}

func (f *BlockFile) readHeader() error {
	header := make([]byte, headerSize)
	if _, err := f.blob.ReadAt(header, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if string(header[:4]) != blockFileMagic {
		return fmt.Errorf("%w: bad magic", ErrBadFormat)
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != blockFileVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadFormat, v)
	}

	f.info.SampleType = SampleType(header[6])
	f.info.Channels = binary.LittleEndian.Uint32(header[8:12])
	for i := 0; i < 3; i++ {
		f.info.BlockSize[i] = binary.LittleEndian.Uint32(header[12+i*4 : 16+i*4])
		f.info.RootGrid[i] = binary.LittleEndian.Uint32(header[24+i*4 : 28+i*4])
	}
	f.info.Levels = binary.LittleEndian.Uint32(header[36:40])
	for i := 0; i < 3; i++ {
		f.info.WorldSize[i] = math.Float32frombits(binary.LittleEndian.Uint32(header[40+i*4 : 44+i*4]))
	}
	if err := f.info.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	count := binary.LittleEndian.Uint64(header[52:60])
	if count > uint64(f.blob.Size())/indexEntrySize {
		return fmt.Errorf("%w: index larger than blob", ErrBadFormat)
	}

	raw := make([]byte, count*indexEntrySize)
	if _, err := f.blob.ReadAt(raw, headerSize); err != nil {
		return fmt.Errorf("%w: truncated index: %v", ErrBadFormat, err)
	}
	for i := uint64(0); i < count; i++ {
		rec := raw[i*indexEntrySize:]
		id := lod.NodeID(binary.LittleEndian.Uint64(rec[0:8]))
		f.index[id] = indexEntry{
			offset:    binary.LittleEndian.Uint64(rec[8:16]),
			storedLen: binary.LittleEndian.Uint32(rec[16:20]),
			rawLen:    binary.LittleEndian.Uint32(rec[20:24]),
			codec:     Codec(rec[24]),
		}
	}
	return nil
}

// Info returns the dataset metadata.
func (f *BlockFile) Info() VolumeInformation { return f.info }

// BlockCount returns the number of blocks present in the dataset.
func (f *BlockFile) BlockCount() int { return len(f.index) }

// LoadBlock reads and decompresses one block.
func (f *BlockFile) LoadBlock(ctx context.Context, id lod.NodeID) ([]byte, error) {
	e, ok := f.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if int64(e.rawLen) != f.info.BlockBytes() {
		return nil, fmt.Errorf("%w: %s raw size %d, want %d", ErrBadFormat, id, e.rawLen, f.info.BlockBytes())
	}

	if err := f.rc.AcquireIO(ctx, int(e.storedLen)); err != nil {
		return nil, err
	}

	stored := make([]byte, e.storedLen)
	if _, err := f.blob.ReadAt(stored, int64(e.offset)); err != nil {
		return nil, fmt.Errorf("volume: read %s: %w", id, err)
	}
	return decompressBlock(stored, e.codec, int(e.rawLen))
}

// Close releases the underlying blob.
func (f *BlockFile) Close() error { return f.blob.Close() }
