package relay

// Channel is the byte stream the board is reached through.
//
// Read returns at most n bytes. Returning fewer when the timeout of the
// channel expires is not an error; the Client reports it as a short read.
// Timeouts and cancellation belong to the channel, the Client has none.
type Channel interface {
	Write(p []byte) error
	Read(n int) ([]byte, error)
}
