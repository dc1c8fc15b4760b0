package provider

// Event is one canonical stream event. The set is closed: AppendText,
// Truncated and Finished are the only implementations.
type Event interface {
	isEvent()
}

// AppendText carries the next slice of generated text.
type AppendText struct {
	Delta string
}

// Truncated reports that the vendor stopped because the output token
// budget ran out.
type Truncated struct{}

// Finished marks the end of the response body.
type Finished struct{}

func (AppendText) isEvent() {}
func (Truncated) isEvent()  {}
func (Finished) isEvent()   {}
