package protocol

import (
	"errors"
	"strings"
)

// Fanout envelope: [sender_id_len:1][sender_id][original_frame].
// The sender identifier lets receiving nodes exclude the originating
// connection without a global connection directory.

const channelPrefix = "room-channel:"

var (
	ErrEnvelopeTooShort = errors.New("protocol: envelope too short")
	ErrSenderIDTooLong  = errors.New("protocol: sender id exceeds 255 bytes")
	ErrEmptySenderID    = errors.New("protocol: empty sender id")
)

// EncodeEnvelope prefixes a frame with its sender's connection identifier.
func EncodeEnvelope(senderID string, frame []byte) ([]byte, error) {
	if senderID == "" {
		return nil, ErrEmptySenderID
	}
	if len(senderID) > 255 {
		return nil, ErrSenderIDTooLong
	}
	out := make([]byte, 0, 1+len(senderID)+len(frame))
	out = append(out, byte(len(senderID)))
	out = append(out, senderID...)
	out = append(out, frame...)
	return out, nil
}

// DecodeEnvelope splits a fanout message into sender id and original frame.
func DecodeEnvelope(raw []byte) (senderID string, frame []byte, err error) {
	if len(raw) < 2 {
		return "", nil, ErrEnvelopeTooShort
	}
	n := int(raw[0])
	if n == 0 {
		return "", nil, ErrEmptySenderID
	}
	if len(raw) < 1+n+1 {
		return "", nil, ErrEnvelopeTooShort
	}
	return string(raw[1 : 1+n]), raw[1+n:], nil
}

// RoomChannel returns the pub/sub channel name for a room.
func RoomChannel(roomID string) string {
	return channelPrefix + roomID
}

// RoomChannelPattern matches every room channel; nodes subscribe to it once.
func RoomChannelPattern() string {
	return channelPrefix + "*"
}

// RoomFromChannel extracts the room identifier from a channel name.
func RoomFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	room := channel[len(channelPrefix):]
	return room, room != ""
}
