package recordmode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/armlab/cr5-teleop/pkg/arm"
	"github.com/armlab/cr5-teleop/pkg/config"
	"github.com/armlab/cr5-teleop/pkg/gripper"
	"github.com/armlab/cr5-teleop/pkg/joystick"
	"github.com/armlab/cr5-teleop/pkg/sound"
)

const chunk = "chunk-000"

// RecordMode captures teleop episodes for dataset collection: camera
// frames to an mp4 plus a JSON-lines file of per-frame arm state.
// Triangle starts an episode, Triangle again finishes it.
type RecordMode struct {
	Arm  arm.Interface
	grip *gripper.Gripper

	cfg    config.RecordConfig
	sounds chan<- string

	cancel  context.CancelFunc
	stopWG  sync.WaitGroup
	samples chan joystick.Sample

	triangleHeld bool
	ep           *episode
}

type frameRecord struct {
	// x, y, z, rx, ry, rz, gripper
	State        []float64 `json:"observation.state"`
	Timestamp    float64   `json:"timestamp"`
	EpisodeIndex int       `json:"episode_index"`
	Index        int       `json:"index"`
}

type episodeMeta struct {
	EpisodeIndex int `json:"episode_index"`
	Length       int `json:"length"`
}

type episode struct {
	index   int
	start   time.Time
	cam     *gocv.VideoCapture
	writer  *gocv.VideoWriter
	frame   gocv.Mat
	records []frameRecord
}

func New(a arm.Interface, grip *gripper.Gripper, sounds chan<- string, cfg config.RecordConfig) *RecordMode {
	return &RecordMode{
		Arm:     a,
		grip:    grip,
		cfg:     cfg,
		sounds:  sounds,
		samples: make(chan joystick.Sample),
	}
}

func (m *RecordMode) Name() string {
	return "Record mode"
}

func (m *RecordMode) Start(ctx context.Context) {
	m.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	go m.loop(loopCtx)
}

func (m *RecordMode) Stop() {
	m.cancel()
	m.stopWG.Wait()
}

func (m *RecordMode) OnJoystickSample(s joystick.Sample) {
	m.samples <- s
}

func (m *RecordMode) loop(ctx context.Context) {
	defer m.stopWG.Done()
	defer func() {
		if m.ep != nil {
			m.finishEpisode()
		}
	}()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-m.samples:
			m.handleSample(s)
		case <-ticker.C:
			if m.ep != nil {
				m.captureStep()
			}
		}
	}
}

func (m *RecordMode) handleSample(s joystick.Sample) {
	if len(s.Buttons) <= joystick.ButtonTriangle {
		return
	}
	triangle := s.Buttons[joystick.ButtonTriangle] != 0
	if triangle && !m.triangleHeld {
		if m.ep == nil {
			m.startEpisode()
		} else {
			m.finishEpisode()
		}
	}
	m.triangleHeld = triangle
}

func (m *RecordMode) startEpisode() {
	if err := m.ensureDirs(); err != nil {
		fmt.Println("Failed to create dataset dirs:", err)
		return
	}
	index := nextEpisodeIndex(filepath.Join(m.cfg.DataRoot, "data", chunk))

	cam, err := gocv.OpenVideoCapture(m.cfg.CameraID)
	if err != nil {
		fmt.Println("Failed to open camera:", err)
		return
	}
	cam.Set(gocv.VideoCaptureFrameWidth, float64(m.cfg.Width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(m.cfg.Height))
	cam.Set(gocv.VideoCaptureFPS, m.cfg.FPS)

	videoPath := filepath.Join(m.cfg.DataRoot, "videos", chunk, "observation.images.ego_view",
		fmt.Sprintf("episode_%06d.mp4", index))
	writer, err := gocv.VideoWriterFile(videoPath, "mp4v", m.cfg.FPS, m.cfg.Width, m.cfg.Height, true)
	if err != nil {
		fmt.Println("Failed to open video writer:", err)
		cam.Close()
		return
	}

	m.ep = &episode{
		index:  index,
		start:  time.Now(),
		cam:    cam,
		writer: writer,
		frame:  gocv.NewMat(),
	}
	fmt.Printf("Recording episode %d to %s\n", index, videoPath)
	m.playCue(sound.CueRecordStart)
}

func (m *RecordMode) captureStep() {
	ep := m.ep
	if ok := ep.cam.Read(&ep.frame); ok && !ep.frame.Empty() {
		ep.writer.Write(ep.frame)
	}

	pose, err := m.Arm.GetPose()
	if err != nil {
		fmt.Println("Failed to read arm pose:", err)
		return
	}
	ep.records = append(ep.records, frameRecord{
		State: []float64{
			pose.X, pose.Y, pose.Z, pose.Rx, pose.Ry, pose.Rz,
			m.grip.Value(),
		},
		Timestamp:    time.Since(ep.start).Seconds(),
		EpisodeIndex: ep.index,
		Index:        len(ep.records),
	})
}

func (m *RecordMode) finishEpisode() {
	ep := m.ep
	m.ep = nil

	ep.cam.Close()
	ep.writer.Close()
	ep.frame.Close()

	dataPath := filepath.Join(m.cfg.DataRoot, "data", chunk,
		fmt.Sprintf("episode_%06d.jsonl", ep.index))
	if err := writeRecords(dataPath, ep.records); err != nil {
		fmt.Println("Failed to write episode data:", err)
	}

	metaPath := filepath.Join(m.cfg.DataRoot, "meta", "episodes.jsonl")
	if err := appendMeta(metaPath, episodeMeta{EpisodeIndex: ep.index, Length: len(ep.records)}); err != nil {
		fmt.Println("Failed to update episode meta:", err)
	}

	fmt.Printf("Saved episode %d: %d frames\n", ep.index, len(ep.records))
	m.playCue(sound.CueRecordStop)
}

func (m *RecordMode) ensureDirs() error {
	for _, p := range []string{
		filepath.Join(m.cfg.DataRoot, "meta"),
		filepath.Join(m.cfg.DataRoot, "data", chunk),
		filepath.Join(m.cfg.DataRoot, "videos", chunk, "observation.images.ego_view"),
	} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return err
		}
	}
	return nil
}

// nextEpisodeIndex is one past the highest episode file already on disk.
func nextEpisodeIndex(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	next := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "episode_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "episode_"), ".jsonl"))
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return next
}

func writeRecords(path string, records []frameRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func appendMeta(path string, meta episodeMeta) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(meta)
}

func (m *RecordMode) playCue(cue string) {
	if m.sounds == nil {
		return
	}
	select {
	case m.sounds <- cue:
	default:
	}
}
