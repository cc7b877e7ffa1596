package stream

import (
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestStreamSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "stream decoder suite")
}

var _ = Describe("chunking invariance", func() {
	It("emits the same event kinds regardless of how the wire bytes are split", func() {
		reference := NewDecoder()
		var wantKinds []Kind
		for _, e := range reference.Feed([]byte(sampleWire)) {
			wantKinds = append(wantKinds, e.Kind)
		}

		rng := rand.New(rand.NewSource(42))
		for trial := 0; trial < 30; trial++ {
			d := NewDecoder()
			data := []byte(sampleWire)
			var gotKinds []Kind
			for len(data) > 0 {
				n := 1 + rng.Intn(3)
				if n > len(data) {
					n = len(data)
				}
				for _, e := range d.Feed(data[:n]) {
					gotKinds = append(gotKinds, e.Kind)
				}
				data = data[n:]
			}
			Expect(gotKinds).To(Equal(wantKinds))
		}
	})

	It("never advances tool state on malformed JSON", func() {
		d := NewDecoder()
		events := d.Feed([]byte("data: {not json\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(KindStart))
	})
})
