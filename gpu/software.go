package gpu

import (
	"errors"
	"fmt"
)

// SoftwareDevice implements Device and Readback with host memory. It backs
// tests and headless tooling; production rendering supplies a device bound
// to a real context. Like any Device it is single-thread only.
type SoftwareDevice struct {
	textures map[TextureID]*swTexture
	nextID   TextureID

	// Creates, Uploads and Deletes count device calls, for tests.
	Creates int
	Uploads int
	Deletes int
}

type swTexture struct {
	slotDims [3]uint32
	format   TextureFormat
	// last uploaded content and its dims; zero dims before first upload
	data []byte
	dims [3]uint32
}

// NewSoftwareDevice creates an empty software device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{textures: make(map[TextureID]*swTexture)}
}

// CreateTexture3D implements Device.
func (d *SoftwareDevice) CreateTexture3D(dims [3]uint32, format TextureFormat) (TextureID, error) {
	if dims[0] == 0 || dims[1] == 0 || dims[2] == 0 {
		return InvalidTexture, errors.New("gpu: zero texture dimension")
	}
	d.nextID++
	d.textures[d.nextID] = &swTexture{slotDims: dims, format: format}
	d.Creates++
	return d.nextID, nil
}

// Upload implements Device.
func (d *SoftwareDevice) Upload(tex TextureID, dims [3]uint32, data []byte) error {
	t, ok := d.textures[tex]
	if !ok {
		return fmt.Errorf("gpu: upload to unknown texture %d", tex)
	}
	for i := 0; i < 3; i++ {
		if dims[i] > t.slotDims[i] {
			return fmt.Errorf("gpu: upload region %v exceeds storage %v", dims, t.slotDims)
		}
	}
	want := int64(dims[0]) * int64(dims[1]) * int64(dims[2]) * t.format.BytesPerVoxel()
	if int64(len(data)) != want {
		return fmt.Errorf("gpu: upload of %d bytes, want %d", len(data), want)
	}

	t.data = make([]byte, len(data))
	copy(t.data, data)
	t.dims = dims
	d.Uploads++
	return nil
}

// DeleteTexture implements Device.
func (d *SoftwareDevice) DeleteTexture(tex TextureID) error {
	if _, ok := d.textures[tex]; !ok {
		return fmt.Errorf("gpu: delete of unknown texture %d", tex)
	}
	delete(d.textures, tex)
	d.Deletes++
	return nil
}

// ReadTexture implements Readback.
func (d *SoftwareDevice) ReadTexture(tex TextureID) ([]byte, [3]uint32, error) {
	t, ok := d.textures[tex]
	if !ok {
		return nil, [3]uint32{}, fmt.Errorf("gpu: read of unknown texture %d", tex)
	}
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return data, t.dims, nil
}

// TextureCount returns the number of live textures, for tests.
func (d *SoftwareDevice) TextureCount() int { return len(d.textures) }
