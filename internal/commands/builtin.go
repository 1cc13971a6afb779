package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VolumeControl is the slice of the audio player the music device needs.
type VolumeControl interface {
	SetVolume(v float32)
	Volume() float32
}

// MusicCallback controls playback volume. Real library playback lives
// behind the emit topic; volume is handled in-process so ducking and voice
// control share one path.
func MusicCallback(vol VolumeControl) Callback {
	return func(action, value string) Result {
		switch action {
		case "volume":
			level, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(value), "%"))
			if err != nil || level < 0 || level > 100 {
				return Spoken("I didn't catch the volume level.")
			}
			vol.SetVolume(float32(level) / 100)
			return Spoken(fmt.Sprintf("Volume set to %d percent.", level))
		case "mute":
			vol.SetVolume(0)
			return Silent()
		case "unmute":
			vol.SetVolume(1)
			return Silent()
		default:
			return FeedLLM(fmt.Sprintf("The music system received %q with %q and has no local handler.", action, value))
		}
	}
}

// TimerCallback starts countdown timers announced through announce.
func TimerCallback(announce func(text string)) Callback {
	return func(action, value string) Result {
		if action != "set" {
			return Spoken("I can only set timers.")
		}
		d, err := parseTimerValue(value)
		if err != nil {
			return Spoken("I didn't catch the timer duration.")
		}
		time.AfterFunc(d, func() {
			announce("Your timer is done.")
		})
		return Spoken(fmt.Sprintf("Timer set for %s.", d))
	}
}

func parseTimerValue(value string) (time.Duration, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d, nil
	}

	fields := strings.Fields(value)
	if len(fields) >= 2 {
		n, err := strconv.Atoi(fields[0])
		if err == nil && n > 0 {
			switch strings.TrimSuffix(fields[1], "s") {
			case "second":
				return time.Duration(n) * time.Second, nil
			case "minute":
				return time.Duration(n) * time.Minute, nil
			case "hour":
				return time.Duration(n) * time.Hour, nil
			}
		}
	}
	return 0, fmt.Errorf("unparseable duration %q", value)
}

// ConversationCallback exposes reset and save of the session history.
func ConversationCallback(reset func(), save func() error) Callback {
	return func(action, value string) Result {
		switch action {
		case "reset", "clear":
			reset()
			return Spoken("Starting fresh.")
		case "save":
			if err := save(); err != nil {
				return Spoken("I couldn't save the conversation.")
			}
			return Spoken("Conversation saved.")
		default:
			return Spoken("I can reset or save the conversation.")
		}
	}
}
