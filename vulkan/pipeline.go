package vulkan

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/square/mesh"
)

const (
	VertexShaderFile   = "vert.spv"
	FragmentShaderFile = "frag.spv"
)

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func loadShaderCode(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading shader")
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Newf("shader %s is not SPIR-V: %d bytes", path, len(data))
	}
	return bytesToBytecode(data), nil
}

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := mesh.Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := mesh.Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// Pipeline is the graphics pipeline drawing mesh.Vertex triangles. Viewport and scissor are
// dynamic, so it survives swapchain recreation.
type Pipeline struct {
	device   core1_0.Device
	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
}

// NewPipeline builds the pipeline from vert.spv and frag.spv in shaderDir.
func NewPipeline(ctx *Context, renderPass core1_0.RenderPass, shaderDir string) (*Pipeline, error) {
	vertCode, err := loadShaderCode(filepath.Join(shaderDir, VertexShaderFile))
	if err != nil {
		return nil, err
	}
	fragCode, err := loadShaderCode(filepath.Join(shaderDir, FragmentShaderFile))
	if err != nil {
		return nil, err
	}

	vertShader, _, err := ctx.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: vertCode})
	if err != nil {
		return nil, errors.Wrap(err, "creating vertex shader module")
	}
	defer vertShader.Destroy(nil)

	fragShader, _, err := ctx.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: fragCode})
	if err != nil {
		return nil, errors.Wrap(err, "creating fragment shader module")
	}
	defer fragShader.Destroy(nil)

	layout, _, err := ctx.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline layout")
	}

	pipelines, _, err := ctx.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   vertexBindingDescriptions(),
				VertexAttributeDescriptions: vertexAttributeDescriptions(),
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			// Counts only; the values are set per frame.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{}},
				Scissors:  []core1_0.Rect2D{{}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeNone,
				FrontFace:   core1_0.FrontFaceClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
			},
			Layout:            layout,
			RenderPass:        renderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	})
	if err != nil {
		layout.Destroy(nil)
		return nil, errors.Wrap(err, "creating graphics pipeline")
	}

	return &Pipeline{device: ctx.device, layout: layout, pipeline: pipelines[0]}, nil
}

func (p *Pipeline) Destroy() {
	p.pipeline.Destroy(nil)
	p.layout.Destroy(nil)
}
