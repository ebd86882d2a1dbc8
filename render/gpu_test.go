//go:build gpu

package render

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/framehost/assets"
	"github.com/vkngwrapper/framehost/sdlwindow"
)

// These tests need a Vulkan device, a display and the compiled shaders
// (go generate ./shaders). Run them with -tags gpu.

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()

	vert, err := assets.LoadShader("../shaders/quad.vert.spv")
	if err != nil {
		t.Skipf("shaders not compiled: %v", err)
	}
	frag, err := assets.LoadShader("../shaders/quad.frag.spv")
	if err != nil {
		t.Skipf("shaders not compiled: %v", err)
	}

	SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	window, err := sdlwindow.New("framehost test", 320, 240)
	if err != nil {
		t.Skipf("no window: %+v", err)
	}
	t.Cleanup(window.Close)

	options := DefaultOptions()
	options.EnableValidation = true
	options.VertexShader = vert
	options.FragmentShader = frag

	r := New(options)
	width, height := window.DrawableSize()
	err = r.Init(window, core1_0.Extent2D{Width: width, Height: height})
	if err != nil {
		t.Fatalf("init: %+v", err)
	}
	t.Cleanup(func() {
		if err := r.Shutdown(); err != nil {
			t.Errorf("shutdown: %+v", err)
		}
	})
	return r
}

func TestBufferRoundTrip(t *testing.T) {
	r := newTestRenderer(t)

	data := make([]uint32, 1024)
	for i := range data {
		data[i] = uint32(i*2654435761) ^ 0xdeadbeef
	}

	buffer, err := r.allocator.UploadBuffer(data, core1_0.BufferUsageTransferSrc)
	if err != nil {
		t.Fatalf("upload: %+v", err)
	}
	defer r.allocator.FreeBuffer(buffer)

	got, err := r.allocator.DownloadBuffer(buffer)
	if err != nil {
		t.Fatalf("download: %+v", err)
	}

	want := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(want[i*4:], v)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("downloaded bytes differ from the upload")
	}
}

func TestRecreateIdempotent(t *testing.T) {
	r := newTestRenderer(t)
	extent := r.swapchain.Extent()
	format := r.swapchain.Format()
	images := r.swapchain.ImageCount()

	for i := 0; i < 2; i++ {
		err := r.swapchain.Recreate(extent)
		if err != nil {
			t.Fatalf("recreate %d: %+v", i, err)
		}
		if r.swapchain.Extent() != extent || r.swapchain.Format() != format || r.swapchain.ImageCount() != images {
			t.Errorf("recreate %d: got %v %v %d, want %v %v %d", i,
				r.swapchain.Extent(), r.swapchain.Format(), r.swapchain.ImageCount(),
				extent, format, images)
		}
	}
}

func TestDrawFrames(t *testing.T) {
	r := newTestRenderer(t)

	pattern := assets.NewPattern(64, 48)
	err := r.LoadTexture(pattern.Next(), pattern.Width, pattern.Height)
	if err != nil {
		t.Fatalf("load texture: %+v", err)
	}

	for i := 0; i < 10; i++ {
		err = r.UpdateTexture(pattern.Next())
		if err != nil {
			t.Fatalf("update texture: %+v", err)
		}
		err = r.DrawFrame()
		if err != nil {
			t.Fatalf("frame %d: %+v", i, err)
		}
	}

	if r.texture.Image.Layout != core1_0.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("texture left in layout %v", r.texture.Image.Layout)
	}
	for slot := range r.texture.pending {
		if r.texture.pending[slot] {
			t.Errorf("slot %d still has an unrecorded upload", slot)
		}
	}

	if stats := r.Stats(); stats.Frames != 10 {
		t.Errorf("stats counted %d frames", stats.Frames)
	}
}
