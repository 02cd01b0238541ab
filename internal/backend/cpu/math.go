package cpu

import (
	"math"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// binaryFuncs is the scalar function table behind Binary.
var binaryFuncs = [...]func(x, y float32) float32{
	tensor.OpAdd: func(x, y float32) float32 { return x + y },
	tensor.OpSub: func(x, y float32) float32 { return x - y },
	tensor.OpMul: func(x, y float32) float32 { return x * y },
	tensor.OpDiv: func(x, y float32) float32 { return x / y },
	tensor.OpPow: func(x, y float32) float32 { return float32(math.Pow(float64(x), float64(y))) },
}

// unaryFuncs is the scalar function table behind Unary. p is the op parameter.
var unaryFuncs = [tensor.NumUnaryOps]func(x, p float32) float32{
	tensor.OpIdentity: func(x, _ float32) float32 { return x },
	tensor.OpNeg:      func(x, _ float32) float32 { return -x },
	tensor.OpScale:    func(x, p float32) float32 { return x * p },
	tensor.OpShift:    func(x, p float32) float32 { return x + p },
	tensor.OpSquare:   func(x, _ float32) float32 { return x * x },
	tensor.OpRecip:    func(x, _ float32) float32 { return 1 / x },
	tensor.OpExp:      lift(math.Exp),
	tensor.OpLog:      lift(math.Log),
	tensor.OpSqrt:     lift(math.Sqrt),
	tensor.OpSin:      lift(math.Sin),
	tensor.OpCos:      lift(math.Cos),
	tensor.OpTanh:     lift(math.Tanh),
	tensor.OpSigmoid:  func(x, _ float32) float32 { return sigmoid(x) },
	tensor.OpReLU: func(x, _ float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	},
	tensor.OpAbs:     lift(math.Abs),
	tensor.OpCeil:    lift(math.Ceil),
	tensor.OpFloor:   lift(math.Floor),
	tensor.OpBinstep: step,
	tensor.OpSign: func(x, _ float32) float32 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	},

	tensor.OpSqrtGrad: func(x, _ float32) float32 { return 0.5 / float32(math.Sqrt(float64(x))) },
	tensor.OpNegSin:   func(x, _ float32) float32 { return -float32(math.Sin(float64(x))) },
	tensor.OpTanhGrad: func(x, _ float32) float32 {
		t := float32(math.Tanh(float64(x)))
		return 1 - t*t
	},
	tensor.OpSigmoidGrad: func(x, _ float32) float32 {
		s := sigmoid(x)
		return s * (1 - s)
	},
	tensor.OpReLUGrad: step,
}

func lift(f func(float64) float64) func(x, _ float32) float32 {
	return func(x, _ float32) float32 { return float32(f(float64(x))) }
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func step(x, _ float32) float32 {
	if x > 0 {
		return 1
	}
	return 0
}
