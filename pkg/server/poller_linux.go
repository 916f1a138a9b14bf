//go:build linux

package server

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// Level-triggered: readiness re-fires every wait while unread data remains
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = readEvents | unix.EPOLLOUT

	maxEvents = 1024
)

// poller wraps an epoll instance plus an eventfd used to interrupt Wait
type poller struct {
	epfd   int
	wakeFD int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &poller{epfd: epfd, wakeFD: wakeFD}
	if err := p.Add(wakeFD); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Add registers fd for readability
func (p *poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: readEvents, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// WatchWrite adds writability to fd's interest set
func (p *poller) WatchWrite(fd int) error {
	ev := unix.EpollEvent{Events: writeEvents, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// UnwatchWrite restores fd's interest set to readability only
func (p *poller) UnwatchWrite(fd int) error {
	ev := unix.EpollEvent{Events: readEvents, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove unregisters fd
func (p *poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks until at least one registered fd is ready. An interrupted wait
// returns zero events.
func (p *poller) Wait(events []unix.EpollEvent) (int, error) {
	n, err := unix.EpollWait(p.epfd, events, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	return n, nil
}

// Wake interrupts a blocked Wait
func (p *poller) Wake() error {
	var buf [8]byte
	buf[0] = 1 // eventfd counters are host-order uint64; any non-zero value works
	_, err := unix.Write(p.wakeFD, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil // counter already non-zero, a wake is pending
	}
	return err
}

// drainWake resets the eventfd counter
func (p *poller) drainWake() {
	var buf [8]byte
	unix.Read(p.wakeFD, buf[:])
}

// Close releases the epoll instance and the eventfd
func (p *poller) Close() error {
	err := unix.Close(p.wakeFD)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
