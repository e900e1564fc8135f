package device

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// depthStencilFormats lists depth-stencil formats in decreasing order of
// preference.
var depthStencilFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatDepth24PlusStencil8,
	gputypes.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth32Float,
	gputypes.TextureFormatDepth16Unorm,
}

type depthKey struct {
	dev     backend.Device
	format  gputypes.TextureFormat
	samples uint32
}

type depthEntry struct {
	surface backend.Surface
	width   int
	height  int
}

type checkedOut struct {
	key   depthKey
	entry depthEntry
}

// DepthStencilCache pools depth-stencil surfaces per device, format and
// sample count. Each bucket is a stack whose head is the most recently
// created or returned surface.
//
// DepthStencilCache is not safe for concurrent use. The Manager calls it
// with the device-access lock held.
type DepthStencilCache struct {
	buckets    map[depthKey][]depthEntry
	checkedOut map[any]checkedOut
}

// NewDepthStencilCache returns an empty cache.
func NewDepthStencilCache() *DepthStencilCache {
	return &DepthStencilCache{
		buckets:    make(map[depthKey][]depthEntry),
		checkedOut: make(map[any]checkedOut),
	}
}

// GetOrCreate returns a surface at least width x height. The bucket head is
// reused when it is large enough; otherwise it is released and replaced by
// a surface of exactly the requested size.
func (c *DepthStencilCache) GetOrCreate(dev backend.Device, format gputypes.TextureFormat,
	samples, quality uint32, width, height int) (backend.Surface, error) {
	key := depthKey{dev: dev, format: format, samples: samples}
	bucket := c.buckets[key]
	if n := len(bucket); n > 0 {
		head := bucket[n-1]
		if head.width >= width && head.height >= height {
			return head.surface, nil
		}
		head.surface.Release()
		bucket[n-1] = depthEntry{}
		bucket = bucket[:n-1]
	}

	s, err := dev.CreateDepthStencil(width, height, format, samples, quality, true)
	if err != nil {
		c.buckets[key] = bucket
		return nil, fmt.Errorf("device: create depth stencil %dx%d %v: %w", width, height, format, err)
	}
	c.buckets[key] = append(bucket, depthEntry{surface: s, width: width, height: height})
	rendercore.Logger().Debug("device: depth stencil created", "format", format, "samples", samples, "width", width, "height", height)
	return s, nil
}

// CheckOut removes the bucket head and records it against target until
// Return is called.
func (c *DepthStencilCache) CheckOut(target any, dev backend.Device, format gputypes.TextureFormat, samples uint32) error {
	key := depthKey{dev: dev, format: format, samples: samples}
	bucket := c.buckets[key]
	n := len(bucket)
	if n == 0 {
		return fmt.Errorf("%w: %v x%d", ErrEmptyBucket, format, samples)
	}
	entry := bucket[n-1]
	bucket[n-1] = depthEntry{}
	c.buckets[key] = bucket[:n-1]
	if prev, ok := c.checkedOut[target]; ok {
		c.push(prev.key, prev.entry)
	}
	c.checkedOut[target] = checkedOut{key: key, entry: entry}
	return nil
}

// Return puts the surface checked out by target back on its bucket head.
func (c *DepthStencilCache) Return(target any) error {
	co, ok := c.checkedOut[target]
	if !ok {
		return ErrNotCheckedOut
	}
	delete(c.checkedOut, target)
	c.push(co.key, co.entry)
	return nil
}

// CheckedOut returns the surface held by target, if any.
func (c *DepthStencilCache) CheckedOut(target any) (backend.Surface, bool) {
	co, ok := c.checkedOut[target]
	return co.entry.surface, ok
}

func (c *DepthStencilCache) push(key depthKey, e depthEntry) {
	c.buckets[key] = append(c.buckets[key], e)
}

// CleanupForDevice releases every cached and checked-out surface of dev.
func (c *DepthStencilCache) CleanupForDevice(dev backend.Device) {
	released := 0
	for key, bucket := range c.buckets {
		if key.dev != dev {
			continue
		}
		for _, e := range bucket {
			e.surface.Release()
			released++
		}
		delete(c.buckets, key)
	}
	for target, co := range c.checkedOut {
		if co.key.dev != dev {
			continue
		}
		co.entry.surface.Release()
		released++
		delete(c.checkedOut, target)
	}
	if released > 0 {
		rendercore.Logger().Debug("device: depth stencils released", "count", released)
	}
}

// Len returns the number of cached surfaces of dev, checked-out ones
// excluded.
func (c *DepthStencilCache) Len(dev backend.Device) int {
	n := 0
	for key, bucket := range c.buckets {
		if key.dev == dev {
			n += len(bucket)
		}
	}
	return n
}
