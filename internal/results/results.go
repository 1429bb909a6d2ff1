// Package results persists prediction tensors to disk and answers
// playback-time questions about them.
//
// A file is little-endian: int32 frame count, int32 interval in seconds,
// then count*classes float32 scores, frame-major.
package results

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/keagan/emotionplayer/internal/tensor"
	"github.com/keagan/emotionplayer/pkg/util"
)

const headerSize = 8

// File extensions of the two prediction files.
const (
	PositivenessExt = ".epp"
	FilterExt       = ".efp"
)

// ErrSizeMismatch is returned when a file's length disagrees with its header.
var ErrSizeMismatch = errors.New("prediction file size does not match header")

// Write stores preds and interval at path, creating the parent directory
// and truncating any existing file.
func Write(path string, preds *tensor.Predictions, interval int) error {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := encode(w, preds, interval); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func encode(w io.Writer, preds *tensor.Predictions, interval int) error {
	count := 0
	var data []float32
	if !preds.Empty() {
		count = preds.Count
		data = preds.Data
	}

	header := [2]int32{int32(count), int32(interval)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Read loads a prediction file written with classes scores per frame.
func Read(path string, classes int) (*tensor.Predictions, int, error) {
	if classes <= 0 {
		return nil, 0, fmt.Errorf("invalid class count %d", classes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("%s: %w: %d bytes", path, ErrSizeMismatch, len(data))
	}

	count := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	interval := int(int32(binary.LittleEndian.Uint32(data[4:8])))
	if count < 0 {
		return nil, 0, fmt.Errorf("%s: negative frame count %d", path, count)
	}

	want := headerSize + count*classes*4
	if len(data) != want {
		return nil, 0, fmt.Errorf("%s: %w: have %d bytes, want %d", path, ErrSizeMismatch, len(data), want)
	}

	preds := tensor.NewPredictions(count, classes)
	body := data[headerSize:]
	for i := range preds.Data {
		preds.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return preds, interval, nil
}

// Store maps video names to prediction files under one directory.
type Store struct {
	Dir string

	PositivenessClasses int
	FilterClasses       int
}

func NewStore(dir string, positivenessClasses, filterClasses int) *Store {
	return &Store{
		Dir:                 dir,
		PositivenessClasses: positivenessClasses,
		FilterClasses:       filterClasses,
	}
}

func (s *Store) PositivenessPath(name string) string {
	return filepath.Join(s.Dir, name+PositivenessExt)
}

func (s *Store) FilterPath(name string) string {
	return filepath.Join(s.Dir, name+FilterExt)
}

func (s *Store) SavePositiveness(name string, preds *tensor.Predictions, interval int) error {
	return Write(s.PositivenessPath(name), preds, interval)
}

func (s *Store) SaveFilter(name string, preds *tensor.Predictions, interval int) error {
	return Write(s.FilterPath(name), preds, interval)
}

func (s *Store) LoadPositiveness(name string) (*tensor.Predictions, int, error) {
	return Read(s.PositivenessPath(name), s.PositivenessClasses)
}

func (s *Store) LoadFilter(name string) (*tensor.Predictions, int, error) {
	return Read(s.FilterPath(name), s.FilterClasses)
}

// HasBoth reports whether both prediction files exist for name.
func (s *Store) HasBoth(name string) bool {
	return util.FileExists(s.PositivenessPath(name)) && util.FileExists(s.FilterPath(name))
}

// Remove deletes the file with extension ext for name. A missing file is
// not an error.
func (s *Store) Remove(name, ext string) error {
	err := os.Remove(filepath.Join(s.Dir, name+ext))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
