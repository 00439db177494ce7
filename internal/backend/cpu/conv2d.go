package cpu

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/parallel"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// Conv2D performs grouped 2D convolution using the im2col algorithm.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// where, per axis,
//
//	out = (in + 2*padding - dilation*(k-1) - 1) / stride + 1
//
// Padding is zero padding. Each (batch, group) pair is unfolded into a column
// matrix and multiplied with the group's slice of the kernel; pairs are
// processed in parallel.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, params tensor.Conv2DParams) *tensor.RawTensor {
	g, err := conv2DGeometry(input.Shape(), kernel.Shape(), params)
	if err != nil {
		panic(fmt.Sprintf("conv2d: %v", err))
	}
	if input.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch input=%s kernel=%s", input.DType(), kernel.DType()))
	}

	output, err := tensor.NewRaw(tensor.Shape{g.N, g.COut, g.HOut, g.WOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2d(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), g, cpu.parallel)
	case tensor.Float64:
		conv2d(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), g, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

// convGeometry holds the resolved sizes of one convolution.
type convGeometry struct {
	N, CIn, H, W   int
	COut, KH, KW   int
	HOut, WOut     int
	Groups         int
	CInG, COutG    int
	SH, SW, PH, PW int
	DH, DW         int
}

// ConvOutputSize returns the spatial output size of a convolution along one axis.
func ConvOutputSize(in, kernel, stride, padding, dilation int) int {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

func conv2DGeometry(inputShape, kernelShape tensor.Shape, p tensor.Conv2DParams) (convGeometry, error) {
	if len(inputShape) != 4 {
		return convGeometry{}, fmt.Errorf("input must be 4D [N,C,H,W], got %dD", len(inputShape))
	}
	if len(kernelShape) != 4 {
		return convGeometry{}, fmt.Errorf("kernel must be 4D [C_out,C_in/groups,K_h,K_w], got %dD", len(kernelShape))
	}
	if p.Groups <= 0 {
		return convGeometry{}, fmt.Errorf("invalid groups %d", p.Groups)
	}
	for i := 0; i < 2; i++ {
		if p.Stride[i] <= 0 || p.Dilation[i] <= 0 || p.Padding[i] < 0 {
			return convGeometry{}, fmt.Errorf("invalid stride %v, padding %v or dilation %v", p.Stride, p.Padding, p.Dilation)
		}
	}

	g := convGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		Groups: p.Groups,
		SH:     p.Stride[0], SW: p.Stride[1],
		PH: p.Padding[0], PW: p.Padding[1],
		DH: p.Dilation[0], DW: p.Dilation[1],
	}

	if g.CIn%g.Groups != 0 || g.COut%g.Groups != 0 {
		return convGeometry{}, fmt.Errorf("channels in=%d out=%d not divisible by groups %d", g.CIn, g.COut, g.Groups)
	}
	g.CInG = g.CIn / g.Groups
	g.COutG = g.COut / g.Groups
	if kernelShape[1] != g.CInG {
		return convGeometry{}, fmt.Errorf("input channels per group %d != kernel channels %d", g.CInG, kernelShape[1])
	}

	g.HOut = ConvOutputSize(g.H, g.KH, g.SH, g.PH, g.DH)
	g.WOut = ConvOutputSize(g.W, g.KW, g.SW, g.PW, g.DW)
	if g.HOut <= 0 || g.WOut <= 0 {
		return convGeometry{}, fmt.Errorf("invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.HOut, g.WOut)
	}
	return g, nil
}

func conv2d[T float](out, in, kernel []T, g convGeometry, cfg parallel.Config) {
	colWidth := g.CInG * g.KH * g.KW
	colHeight := g.HOut * g.WOut

	parallel.ForBatch(g.N, g.Groups, func(n, grp int) {
		col := make([]T, colHeight*colWidth)
		im2col(col, in, n, grp, g)

		for oc := 0; oc < g.COutG; oc++ {
			c := grp*g.COutG + oc
			kRow := kernel[c*colWidth : (c+1)*colWidth]
			dst := out[(n*g.COut+c)*colHeight : (n*g.COut+c+1)*colHeight]
			for p := 0; p < colHeight; p++ {
				patch := col[p*colWidth : (p+1)*colWidth]
				var sum T
				for k, w := range kRow {
					sum += w * patch[k]
				}
				dst[p] = sum
			}
		}
	}, cfg)
}

// im2col unfolds the input channels of one (batch, group) pair into
// col [H_out * W_out, C_in/groups * K_h * K_w]. Positions falling into the
// padding read as zero.
func im2col[T float](col, in []T, n, grp int, g convGeometry) {
	colWidth := g.CInG * g.KH * g.KW
	row := 0

	for outH := 0; outH < g.HOut; outH++ {
		for outW := 0; outW < g.WOut; outW++ {
			hStart := outH*g.SH - g.PH
			wStart := outW*g.SW - g.PW
			bufIdx := row * colWidth

			for ic := 0; ic < g.CInG; ic++ {
				c := grp*g.CInG + ic
				plane := in[(n*g.CIn+c)*g.H*g.W : (n*g.CIn+c+1)*g.H*g.W]
				for kh := 0; kh < g.KH; kh++ {
					h := hStart + kh*g.DH
					for kw := 0; kw < g.KW; kw++ {
						w := wStart + kw*g.DW
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							col[bufIdx] = plane[h*g.W+w]
						} else {
							col[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			row++
		}
	}
}
