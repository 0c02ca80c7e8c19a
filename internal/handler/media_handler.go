package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/gptbundle/internal/middleware"
	"github.com/ashwinyue/gptbundle/internal/service"
	"github.com/ashwinyue/gptbundle/internal/service/media"
)

// MediaHandler 媒体文件处理器
type MediaHandler struct {
	svc *service.Services
}

// NewMediaHandler 创建媒体文件处理器
func NewMediaHandler(svc *service.Services) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// UploadedFile 上传结果
type UploadedFile struct {
	Filename string `json:"filename"`
	Key      string `json:"key"`
}

// Upload 接收 multipart 文件并写入临时命名空间
// 返回的对象键由后续对话保存时迁移到永久命名空间
func (h *MediaHandler) Upload(c *gin.Context) {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		Unauthorized(c, "User not authenticated")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "Invalid multipart form: "+err.Error())
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		BadRequest(c, "No files provided")
		return
	}

	uploaded := make([]UploadedFile, 0, len(files))
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			Error(c, err)
			return
		}

		key := media.TempKey(email, file.Filename)
		contentType := file.Header.Get("Content-Type")
		err = h.svc.Media.Upload(c.Request.Context(), key, src, file.Size, contentType)
		src.Close()
		if err != nil {
			Error(c, err)
			return
		}

		uploaded = append(uploaded, UploadedFile{Filename: file.Filename, Key: key})
	}

	Created(c, gin.H{"files": uploaded})
}
