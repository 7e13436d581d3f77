package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const maxUploadBytes = 10 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// uploadImage handles HTTP requests on "POST /api/upload".
// The image ends up under the uploads dir with a random name; the
// returned URL is what clients put into message imageUrl fields.
func (h *handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Form field \"image\" with a file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// sniff the real content type instead of trusting the part header
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && err != io.EOF {
		http.Error(w, "Can not read uploaded file", http.StatusBadRequest)
		return
	}
	contentType := http.DetectContentType(head[:n])

	ext, ok := imageExtensions[contentType]
	if !ok {
		http.Error(w, "Only JPEG, PNG, GIF and WebP images are accepted", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.logger.Errorf("creating upload dir: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		h.logger.Errorf("creating upload file: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := dst.Write(head[:n]); err != nil {
		h.logger.Errorf("writing upload %s: %v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		h.logger.Errorf("writing upload %s: %v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.logger.Debugf("Stored upload %s (%s, %d bytes declared)", name, contentType, header.Size)

	h.writeJSON(w, http.StatusCreated, map[string]string{"imageUrl": "/uploads/" + name})
}
