package gpu

import (
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

const maskShader = `
	@group(0) @binding(0) var<storage, read_write> values: array<f32>;
	@group(0) @binding(1) var<storage, read> mask: array<f32>;

	@compute @workgroup_size(256)
	fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
		let i = gid.x;
		if (i >= arrayLength(&values)) { return; }
		values[i] = values[i] * mask[i];
	}
`

func (c *Context) ensureMaskPipeline() (*wgpu.ComputePipeline, error) {
	c.maskOnce.Do(func() {
		module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          "MaskMultiply",
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: maskShader},
		})
		if err != nil {
			c.maskErr = errors.Wrap(err, "create shader module")
			return
		}
		defer module.Release()

		c.maskPipeline, err = c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label: "MaskMultiplyPipeline",
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			c.maskErr = errors.Wrap(err, "create compute pipeline")
		}
	})
	return c.maskPipeline, c.maskErr
}

// MultiplyMask returns values[i] * mask[i] computed on the GPU.
// mask holds 0 or 1 per entry and must match values in length.
func MultiplyMask(values, mask []float32) ([]float32, error) {
	if len(values) != len(mask) {
		return nil, errors.Errorf("mask length %d does not match values length %d", len(mask), len(values))
	}
	if len(values) == 0 {
		return []float32{}, nil
	}

	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	pipeline, err := c.ensureMaskPipeline()
	if err != nil {
		return nil, err
	}

	valBuf, err := NewFloatBuffer("MaskValues", values, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer valBuf.Destroy()
	maskBuf, err := NewFloatBuffer("MaskBits", mask, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer maskBuf.Destroy()

	bindGroup, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "MaskMultiply",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: valBuf, Size: valBuf.GetSize()},
			{Binding: 1, Buffer: maskBuf, Size: maskBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create bind group")
	}
	defer bindGroup.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((len(values)+255)/256), 1, 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return nil, errors.Wrap(err, "finish command")
	}
	c.Queue.Submit(cmd)

	return ReadBuffer(valBuf, len(values))
}
