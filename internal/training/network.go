package training

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Activation functions supported by network layers
const (
	activationSigmoid = "sigmoid"
	activationReLU    = "relu"
)

// bceEpsilon keeps the binary cross-entropy loss finite at the extremes
const bceEpsilon = 1e-12

// layer is one dense layer: weights[out][in] plus a bias per output unit
type layer struct {
	weights    [][]float64
	biases     []float64
	activation string
}

// Network is a small feed-forward network trained with mini-batch SGD
// over binary cross-entropy. It always ends in a single sigmoid unit; a
// network with no hidden layers is a logistic regression.
//
// Prediction is deterministic and safe for concurrent use once training
// has finished. Dropout applies only during training.
type Network struct {
	layers  []*layer
	inputs  int
	dropout float64
}

// NewNetwork builds a network for the given input width and hidden layer
// sizes. Weights are initialized from the seeded generator so identical
// seeds yield identical starting points.
func NewNetwork(inputs int, hidden []int, dropout float64, rng *rand.Rand) *Network {
	net := &Network{inputs: inputs, dropout: dropout}

	prev := inputs
	for _, size := range hidden {
		net.layers = append(net.layers, newLayer(prev, size, activationReLU, rng))
		prev = size
	}
	net.layers = append(net.layers, newLayer(prev, 1, activationSigmoid, rng))
	return net
}

// newLayer initializes a dense layer with scaled uniform weights
func newLayer(in, out int, activation string, rng *rand.Rand) *layer {
	scale := math.Sqrt(2.0 / float64(in))
	weights := make([][]float64, out)
	for o := range weights {
		weights[o] = make([]float64, in)
		for i := range weights[o] {
			weights[o][i] = (rng.Float64()*2 - 1) * scale
		}
	}
	return &layer{
		weights:    weights,
		biases:     make([]float64, out),
		activation: activation,
	}
}

// Predict runs a deterministic forward pass and returns the sigmoid
// output in [0,1].
func (n *Network) Predict(features []float64) (float64, error) {
	if len(features) != n.inputs {
		return 0, fmt.Errorf("expected %d features, got %d", n.inputs, len(features))
	}
	activations, _ := n.forward(features, nil)
	return activations[len(activations)-1][0], nil
}

// forward computes activations for every layer. When rng is non-nil,
// inverted dropout is applied to hidden activations and the masks are
// returned for backpropagation.
func (n *Network) forward(input []float64, rng *rand.Rand) ([][]float64, [][]float64) {
	activations := make([][]float64, len(n.layers)+1)
	activations[0] = input
	masks := make([][]float64, len(n.layers))

	current := input
	for li, l := range n.layers {
		next := make([]float64, len(l.weights))
		for o, row := range l.weights {
			sum := l.biases[o]
			for i, w := range row {
				sum += w * current[i]
			}
			next[o] = activate(l.activation, sum)
		}

		// Dropout on hidden layers only, training time only.
		if rng != nil && n.dropout > 0 && li < len(n.layers)-1 {
			mask := make([]float64, len(next))
			keep := 1 - n.dropout
			for o := range next {
				if rng.Float64() < keep {
					mask[o] = 1 / keep
				}
				next[o] *= mask[o]
			}
			masks[li] = mask
		}

		activations[li+1] = next
		current = next
	}
	return activations, masks
}

// trainBatch runs one SGD step over a mini-batch and returns the mean
// binary cross-entropy loss.
func (n *Network) trainBatch(batchX [][]float64, batchY []float64, learningRate float64, rng *rand.Rand) float64 {
	var totalLoss float64

	// Accumulate gradients over the batch before applying them.
	gradW := make([][][]float64, len(n.layers))
	gradB := make([][]float64, len(n.layers))
	for li, l := range n.layers {
		gradW[li] = make([][]float64, len(l.weights))
		for o := range l.weights {
			gradW[li][o] = make([]float64, len(l.weights[o]))
		}
		gradB[li] = make([]float64, len(l.biases))
	}

	for bi, x := range batchX {
		y := batchY[bi]
		activations, masks := n.forward(x, rng)
		predicted := activations[len(activations)-1][0]
		totalLoss += bceLoss(predicted, y)

		// Output delta for sigmoid + BCE reduces to (a - y).
		delta := []float64{predicted - y}

		for li := len(n.layers) - 1; li >= 0; li-- {
			l := n.layers[li]
			prevAct := activations[li]

			for o := range l.weights {
				gradB[li][o] += delta[o]
				for i := range l.weights[o] {
					gradW[li][o][i] += delta[o] * prevAct[i]
				}
			}

			if li == 0 {
				break
			}

			prevLayer := n.layers[li-1]
			prevDelta := make([]float64, len(prevLayer.weights))
			for i := range prevDelta {
				var sum float64
				for o := range l.weights {
					sum += l.weights[o][i] * delta[o]
				}
				if prevLayer.activation == activationReLU && activations[li][i] <= 0 {
					sum = 0
				}
				if masks[li-1] != nil {
					sum *= masks[li-1][i]
				}
				prevDelta[i] = sum
			}
			delta = prevDelta
		}
	}

	batchSize := float64(len(batchX))
	for li, l := range n.layers {
		for o := range l.weights {
			l.biases[o] -= learningRate * gradB[li][o] / batchSize
			for i := range l.weights[o] {
				l.weights[o][i] -= learningRate * gradW[li][o][i] / batchSize
			}
		}
	}

	return totalLoss / batchSize
}

func activate(kind string, x float64) float64 {
	switch kind {
	case activationReLU:
		if x < 0 {
			return 0
		}
		return x
	default:
		return sigmoid(x)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func bceLoss(predicted, actual float64) float64 {
	p := math.Min(math.Max(predicted, bceEpsilon), 1-bceEpsilon)
	return -(actual*math.Log(p) + (1-actual)*math.Log(1-p))
}

// networkBlob is the persisted wire format of a trained network
type networkBlob struct {
	SchemaVersion int         `json:"schema_version"`
	Inputs        int         `json:"inputs"`
	Layers        []layerBlob `json:"layers"`
	Dropout       float64     `json:"dropout"`
}

type layerBlob struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

// Encode serializes the network weights to an opaque blob
func (n *Network) Encode() ([]byte, error) {
	blob := networkBlob{SchemaVersion: 1, Inputs: n.inputs, Dropout: n.dropout}
	for _, l := range n.layers {
		blob.Layers = append(blob.Layers, layerBlob{
			Weights:    l.weights,
			Biases:     l.biases,
			Activation: l.activation,
		})
	}
	return json.Marshal(blob)
}

// DecodeNetwork rebuilds a network from a stored weight blob
func DecodeNetwork(data []byte) (*Network, error) {
	var blob networkBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode network weights: %w", err)
	}
	if len(blob.Layers) == 0 {
		return nil, fmt.Errorf("network blob has no layers")
	}

	net := &Network{inputs: blob.Inputs, dropout: blob.Dropout}
	for _, l := range blob.Layers {
		net.layers = append(net.layers, &layer{
			weights:    l.Weights,
			biases:     l.Biases,
			activation: l.Activation,
		})
	}
	return net, nil
}
