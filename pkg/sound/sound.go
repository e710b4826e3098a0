package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Cue names with a wav file in the configured sounds directory.
const (
	CueMode         = "mode"
	CueGripperOpen  = "gripper-open"
	CueGripperClose = "gripper-close"
	CueRecordStart  = "record-start"
	CueRecordStop   = "record-stop"
)

// InitPlayer starts the playback goroutine and returns the channel to send
// cue names on.  A new cue interrupts whatever is still playing.  If the
// speaker can't be opened (headless rig), cues are logged and dropped.
func InitPlayer(dir string) chan string {
	cues := make(chan string)
	go func() {
		defer func() {
			recover()
			for c := range cues {
				fmt.Println("Unable to play", c)
			}
		}()
		sampleRate := beep.SampleRate(44100)
		err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
		if err != nil {
			fmt.Println("Failed to open speaker", err)
			for c := range cues {
				fmt.Println("Unable to play", c)
			}
		}
		var ctrl *beep.Ctrl
		var s beep.StreamSeekCloser
		for cue := range cues {
			if ctrl != nil {
				speaker.Lock()
				ctrl.Paused = true
				ctrl.Streamer = nil
				speaker.Unlock()
				ctrl = nil
			}
			if s != nil {
				s.Close()
			}

			f, err := os.Open(filepath.Join(dir, cue+".wav"))
			if err != nil {
				fmt.Println("Failed to open sound", err)
				continue
			}
			s, _, err = wav.Decode(f)
			if err != nil {
				fmt.Println("Failed to decode sound", err)
				continue
			}
			ctrl = &beep.Ctrl{Streamer: s}
			speaker.Play(ctrl)
		}
	}()
	return cues
}
