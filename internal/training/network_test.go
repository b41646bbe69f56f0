package training_test

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/training"
)

func TestNetwork_Predict(t *testing.T) {
	Convey("Given a freshly initialized network", t, func() {
		net := training.NewNetwork(core.FeatureCount(), []int{16, 8}, 0.2, rand.New(rand.NewSource(42)))

		features := make([]float64, core.FeatureCount())
		for i := range features {
			features[i] = float64(i) / float64(len(features))
		}

		Convey("When predicting", func() {
			score, err := net.Predict(features)

			Convey("Then the output is a valid probability", func() {
				So(err, ShouldBeNil)
				So(score, ShouldBeGreaterThanOrEqualTo, 0)
				So(score, ShouldBeLessThanOrEqualTo, 1)
			})

			Convey("Then repeated predictions are bit-identical", func() {
				again, err := net.Predict(features)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, score)
			})
		})

		Convey("When predicting with the wrong vector width", func() {
			_, err := net.Predict(make([]float64, 3))

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "expected")
			})
		})
	})

	Convey("Given two networks built from the same seed", t, func() {
		a := training.NewNetwork(core.FeatureCount(), []int{8}, 0, rand.New(rand.NewSource(7)))
		b := training.NewNetwork(core.FeatureCount(), []int{8}, 0, rand.New(rand.NewSource(7)))

		features := make([]float64, core.FeatureCount())
		features[0] = 0.5
		features[2] = 0.8

		Convey("Then their predictions are identical", func() {
			sa, err := a.Predict(features)
			So(err, ShouldBeNil)
			sb, err := b.Predict(features)
			So(err, ShouldBeNil)
			So(sa, ShouldEqual, sb)
		})
	})
}

func TestNetwork_EncodeDecode(t *testing.T) {
	Convey("Given a trained-shape network", t, func() {
		net := training.NewNetwork(core.FeatureCount(), []int{16, 8}, 0.2, rand.New(rand.NewSource(42)))

		features := make([]float64, core.FeatureCount())
		for i := range features {
			features[i] = 1 - float64(i)/float64(len(features))
		}
		original, err := net.Predict(features)
		So(err, ShouldBeNil)

		Convey("When encoding and decoding the weights", func() {
			blob, err := net.Encode()
			So(err, ShouldBeNil)
			So(len(blob), ShouldBeGreaterThan, 0)

			restored, err := training.DecodeNetwork(blob)

			Convey("Then the restored network predicts identically", func() {
				So(err, ShouldBeNil)
				score, err := restored.Predict(features)
				So(err, ShouldBeNil)
				So(score, ShouldEqual, original)
			})
		})

		Convey("When decoding garbage", func() {
			_, err := training.DecodeNetwork([]byte("not json"))

			Convey("Then it fails cleanly", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When decoding an empty blob", func() {
			_, err := training.DecodeNetwork([]byte("{}"))

			Convey("Then a layerless network is rejected", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "no layers")
			})
		})
	})
}
