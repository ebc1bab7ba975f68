package vulkan

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/square/framesync"
	"github.com/vkngwrapper/square/mesh"
)

// Buffer is a device-local buffer with its own allocation.
type Buffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
}

func (b *Buffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy(nil)
	}
	if b.memory != nil {
		b.memory.Free(nil)
	}
}

// MeshBuffers holds the uploaded vertex and index data of a mesh.
type MeshBuffers struct {
	Vertices   *Buffer
	Indices    *Buffer
	IndexType  framesync.IndexType
	IndexCount int
}

// Geometry describes the upload for the frame recorder.
func (m *MeshBuffers) Geometry(pipeline *Pipeline) framesync.Geometry {
	return framesync.Geometry{
		Pipeline:     pipeline,
		VertexBuffer: m.Vertices,
		IndexBuffer:  m.Indices,
		IndexType:    m.IndexType,
		IndexCount:   m.IndexCount,
	}
}

func (m *MeshBuffers) Destroy() {
	m.Indices.Destroy()
	m.Vertices.Destroy()
}

func indexTypeFor(width int) framesync.IndexType {
	if width == 4 {
		return framesync.IndexUint32
	}
	return framesync.IndexUint16
}

// UploadMesh copies the mesh into device-local vertex and index buffers through staging buffers.
func UploadMesh(ctx *Context, m *mesh.Mesh) (*MeshBuffers, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	vertices, err := ctx.uploadBuffer(m.Vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrap(err, "uploading vertices")
	}

	indices, err := ctx.uploadBuffer(m.IndexData(), core1_0.BufferUsageIndexBuffer)
	if err != nil {
		vertices.Destroy()
		return nil, errors.Wrap(err, "uploading indices")
	}

	return &MeshBuffers{
		Vertices:   vertices,
		Indices:    indices,
		IndexType:  indexTypeFor(m.IndexWidth()),
		IndexCount: m.IndexCount(),
	}, nil
}

func (c *Context) uploadBuffer(data any, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	bufferSize := binary.Size(data)
	if bufferSize <= 0 {
		return nil, errors.Newf("cannot upload %T", data)
	}

	staging, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	defer staging.Destroy()
	if err != nil {
		return nil, err
	}

	if err := writeData(staging.memory, 0, data); err != nil {
		return nil, err
	}

	buffer, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	if err := c.copyBuffer(staging.buffer, buffer.buffer, bufferSize); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// createBuffer always returns a Buffer holding whatever was created, so the caller can
// release it on error.
func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	b := &Buffer{}

	var err error
	b.buffer, _, err = c.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return b, err
	}

	memRequirements := b.buffer.MemoryRequirements()
	memoryTypeIndex, err := c.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return b, err
	}

	b.memory, _, err = c.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return b, err
	}

	_, err = b.buffer.BindBufferMemory(b.memory, 0)
	return b, err
}

func (c *Context) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.physicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %b with properties %s", typeFilter, properties)
}

func (c *Context) copyBuffer(src core1_0.Buffer, dst core1_0.Buffer, size int) error {
	buffers, _, err := c.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}
	buffer := buffers[0]
	defer c.device.FreeCommandBuffers(buffers)

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	err = buffer.CmdCopyBuffer(src, dst, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
	if err != nil {
		return err
	}

	if _, err := buffer.End(); err != nil {
		return err
	}

	_, err = c.graphicsQueue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return err
	}

	_, err = c.graphicsQueue.WaitIdle()
	return err
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrapf(err, "encoding %T", data)
	}
	return buf.Bytes(), nil
}

func writeData(memory core1_0.DeviceMemory, offset int, data any) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	memoryPtr, _, err := memory.Map(offset, len(encoded), 0)
	if err != nil {
		return err
	}
	defer memory.Unmap()

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), len(encoded))
	copy(dataBuffer, encoded)
	return nil
}
