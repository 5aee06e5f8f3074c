package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSource は静止画またはディレクトリ内の画像を順番にフレームとして再生します。
// ドライランやデモで実際の画面共有の代わりに使います。
type FileSource struct {
	mu     sync.Mutex
	paths  []string
	next   int
	loop   bool
	frames map[string]image.Image

	done      chan struct{}
	closeOnce sync.Once
}

// NewFileSource は path (ファイルまたはディレクトリ) から FileSource を作成します。
// loop が false の場合、最後のフレームの後でストリーム終了になります。
func NewFileSource(path string, loop bool) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("フレームファイルの確認に失敗: %w", err)
	}

	var paths []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("フレームディレクトリの読み込みに失敗: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".png", ".jpg", ".jpeg":
				paths = append(paths, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s に画像ファイルがありません", path)
	}

	return &FileSource{
		paths:  paths,
		loop:   loop,
		frames: make(map[string]image.Image, len(paths)),
		done:   make(chan struct{}),
	}, nil
}

// Frame は次の画像をデコードして返します。
func (s *FileSource) Frame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.done:
		return nil, ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.paths) {
		if !s.loop {
			s.closeOnce.Do(func() { close(s.done) })
			return nil, ErrEndOfStream
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++

	if img, ok := s.frames[path]; ok {
		return img, nil
	}
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	s.frames[path] = img
	return img, nil
}

// Done はストリーム終了時に閉じられるチャネルを返します。
func (s *FileSource) Done() <-chan struct{} {
	return s.done
}

// Close は再生を終了します。
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("フレームファイルのオープンに失敗: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("フレーム画像のデコードに失敗 (%s): %w", path, err)
	}
	return img, nil
}
