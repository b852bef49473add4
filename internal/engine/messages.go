package engine

import (
	"fmt"
	"time"
)

func startNotice(waiting int, timeout time.Duration) string {
	msg := "Working..."
	if waiting > 0 {
		msg += fmt.Sprintf(" (%d message(s) waiting after this one)", waiting)
	}
	return msg + fmt.Sprintf("\nTimeout: %d min. Send /cancel to abort.", minutes(timeout))
}

func queuedAck(position int, busyFor time.Duration) string {
	return fmt.Sprintf("Message received! Queue position: #%d.\nProcessing for %ds; it will run as soon as the tool is free.",
		position, seconds(busyFor))
}

func heartbeatNotice(elapsed, remaining time.Duration) string {
	return fmt.Sprintf("Still working... (%d min elapsed, timeout in %d min)\nSend /cancel to abort.",
		minutes(elapsed), minutes(remaining))
}

func timeoutNotice(timeout time.Duration) string {
	return fmt.Sprintf("Timeout (%d min) - the tool was interrupted.\nThe task took too long. Try splitting your request into smaller steps.",
		minutes(timeout))
}

func failureNotice(err error) string {
	return "Error: " + err.Error()
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
