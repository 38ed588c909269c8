package devserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/utils"
)

var (
	ErrUploadTooLarge = errors.New("upload too large")
	ErrUploadType     = errors.New("unsupported upload type")
)

// UploadsURLPrefix 上传文件的访问前缀
const UploadsURLPrefix = "/uploads"

type UploadKind string

const (
	KindAudio   UploadKind = "audio"
	KindPicture UploadKind = "image"
)

var allowedExt = map[UploadKind]map[string]bool{
	KindAudio:   {".webm": true, ".ogg": true, ".mp3": true, ".wav": true, ".m4a": true, ".mp4": true},
	KindPicture: {".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true},
}

// SavedUpload 已保存的上传文件
type SavedUpload struct {
	Path     string // 磁盘路径
	URL      string // 对外路径，如 /uploads/<session>/<id>.webm
	Filename string
}

// Uploads 将语音与图片保存到本地目录
type Uploads struct {
	root    string
	maxSize int64
}

func NewUploads(root string, maxSize int64) *Uploads {
	return &Uploads{root: root, maxSize: maxSize}
}

func (u *Uploads) Root() string { return u.root }

func (u *Uploads) Save(fh *multipart.FileHeader, sessionID string, kind UploadKind) (SavedUpload, error) {
	if u.maxSize > 0 && fh.Size > u.maxSize {
		return SavedUpload{}, ErrUploadTooLarge
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExt[kind][ext] {
		return SavedUpload{}, fmt.Errorf("%w: %q", ErrUploadType, ext)
	}

	dirName := filepath.Base(sessionID)
	dir := filepath.Join(u.root, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SavedUpload{}, err
	}
	name := utils.NewMessageID() + ext
	dst := filepath.Join(dir, name)

	src, err := fh.Open()
	if err != nil {
		return SavedUpload{}, err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return SavedUpload{}, err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return SavedUpload{}, err
	}
	if err := out.Close(); err != nil {
		return SavedUpload{}, err
	}

	return SavedUpload{
		Path:     dst,
		URL:      path.Join(UploadsURLPrefix, dirName, name),
		Filename: name,
	}, nil
}

func (u *Uploads) Open(saved SavedUpload) (*os.File, error) {
	return os.Open(saved.Path)
}
