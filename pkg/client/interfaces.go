package client

// ConnectionInterface is what the terminal UI needs from a connection.
// The real Connection implements it; tests substitute a fake.
type ConnectionInterface interface {
	Login(username string) error
	SendPublic(content string) error
	SendPrivate(target, content string) error
	RequestFile(filename string) error
	Messages() <-chan string
	Close()
}

var _ ConnectionInterface = (*Connection)(nil)
