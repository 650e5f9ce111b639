//go:build linux

package netwatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// recvTimeout bounds each blocking read so cancellation is noticed.
const recvTimeout = time.Second

// platformEvents subscribes to rtnetlink link and address groups and
// calls notify once per received datagram.
func platformEvents(ctx context.Context, notify func()) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("netwatch: netlink socket: %w", err)
	}
	defer unix.Close(fd) //nolint:errcheck // best effort on teardown

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR,
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("netwatch: netlink bind: %w", err)
	}

	tv := unix.NsecToTimeval(recvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("netwatch: netlink timeout: %w", err)
	}

	buf := make([]byte, unix.Getpagesize())
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOBUFS) {
				// Kernel dropped messages; state must be re-read anyway.
				notify()
				continue
			}
			return fmt.Errorf("netwatch: netlink receive: %w", err)
		}
		if n > 0 && ctx.Err() == nil {
			notify()
		}
	}
}
