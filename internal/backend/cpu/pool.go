package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/pnnxgen/internal/parallel"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [N, C, H, W]
// Output shape: [N, C, H_out, W_out]
//
//	out = (in + 2*padding - kernel) / stride + 1
//
// Padded positions hold the lowest representable value, so they never win
// against a real element.
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, params tensor.Pool2DParams) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}

	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	for i := 0; i < 2; i++ {
		if params.Kernel[i] <= 0 || params.Stride[i] <= 0 || params.Padding[i] < 0 {
			panic(fmt.Sprintf("maxpool2d: invalid kernel %v, stride %v or padding %v", params.Kernel, params.Stride, params.Padding))
		}
		if params.Padding[i]*2 > params.Kernel[i] {
			panic(fmt.Sprintf("maxpool2d: padding %v exceeds half the kernel %v", params.Padding, params.Kernel))
		}
	}

	HOut := (H+2*params.Padding[0]-params.Kernel[0])/params.Stride[0] + 1
	WOut := (W+2*params.Padding[1]-params.Kernel[1])/params.Stride[1] + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions %dx%d (kernel=%v, stride=%v, input=%dx%d)",
			HOut, WOut, params.Kernel, params.Stride, H, W))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, C, HOut, WOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: failed to create output: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		maxpool2d(output.AsFloat32(), input.AsFloat32(), N, C, H, W, HOut, WOut, params, -math.MaxFloat32, cpu.parallel)
	case tensor.Float64:
		maxpool2d(output.AsFloat64(), input.AsFloat64(), N, C, H, W, HOut, WOut, params, -math.MaxFloat64, cpu.parallel)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %v", input.DType()))
	}

	return output
}

func maxpool2d[T float](out, in []T, N, C, H, W, HOut, WOut int, p tensor.Pool2DParams, lowest T, cfg parallel.Config) {
	parallel.ForBatch(N, C, func(n, c int) {
		plane := in[(n*C+c)*H*W : (n*C+c+1)*H*W]
		dst := out[(n*C+c)*HOut*WOut : (n*C+c+1)*HOut*WOut]

		for outH := 0; outH < HOut; outH++ {
			hStart := outH*p.Stride[0] - p.Padding[0]
			for outW := 0; outW < WOut; outW++ {
				wStart := outW*p.Stride[1] - p.Padding[1]

				maxVal := lowest
				for kh := 0; kh < p.Kernel[0]; kh++ {
					h := hStart + kh
					if h < 0 || h >= H {
						continue
					}
					row := plane[h*W : (h+1)*W]
					for kw := 0; kw < p.Kernel[1]; kw++ {
						w := wStart + kw
						if w < 0 || w >= W {
							continue
						}
						if row[w] > maxVal {
							maxVal = row[w]
						}
					}
				}
				dst[outH*WOut+outW] = maxVal
			}
		}
	}, cfg)
}

// AdaptiveAvgPool2D averages [N, C, H, W] into [N, C, outH, outW].
//
// Output cell i along an axis of length L averages the input range
// [floor(i*L/out), ceil((i+1)*L/out)). When L is divisible by out this is a
// plain average pool with kernel = stride = L/out.
func (cpu *CPUBackend) AdaptiveAvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("adaptive_avgpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("adaptive_avgpool2d: invalid output size %dx%d", outH, outW))
	}

	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	output, err := tensor.NewRaw(tensor.Shape{N, C, outH, outW}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("adaptive_avgpool2d: failed to create output: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		adaptiveAvgPool2d(output.AsFloat32(), input.AsFloat32(), N, C, H, W, outH, outW, cpu.parallel)
	case tensor.Float64:
		adaptiveAvgPool2d(output.AsFloat64(), input.AsFloat64(), N, C, H, W, outH, outW, cpu.parallel)
	default:
		panic(fmt.Sprintf("adaptive_avgpool2d: unsupported dtype %v", input.DType()))
	}
	return output
}

func adaptiveAvgPool2d[T float](out, in []T, N, C, H, W, outH, outW int, cfg parallel.Config) {
	parallel.ForBatch(N, C, func(n, c int) {
		plane := in[(n*C+c)*H*W : (n*C+c+1)*H*W]
		dst := out[(n*C+c)*outH*outW : (n*C+c+1)*outH*outW]

		for oh := 0; oh < outH; oh++ {
			h0, h1 := adaptiveRange(oh, H, outH)
			for ow := 0; ow < outW; ow++ {
				w0, w1 := adaptiveRange(ow, W, outW)
				var sum T
				for h := h0; h < h1; h++ {
					for w := w0; w < w1; w++ {
						sum += plane[h*W+w]
					}
				}
				dst[oh*outW+ow] = sum / T((h1-h0)*(w1-w0))
			}
		}
	}, cfg)
}

// adaptiveRange returns the half-open input range covered by output index i.
func adaptiveRange(i, in, out int) (int, int) {
	start := i * in / out
	end := ((i+1)*in + out - 1) / out
	return start, end
}
