package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

const indexPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>pdfrag</title></head>
<body>
<h1>Ask your PDFs</h1>
<form method="post" action="/upload" enctype="multipart/form-data">
<input type="file" name="file" accept=".pdf" multiple>
<button type="submit">Upload</button>
</form>
<form method="post" action="/ask">
<input type="text" name="question" size="80">
<button type="submit">Ask</button>
</form>
</body>
</html>
`

type askRequest struct {
	Question string `form:"question" json:"question"`
}

type sourceResponse struct {
	Index  int     `json:"index"`
	Offset int     `json:"offset"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

type askResponse struct {
	Answer  string           `json:"answer"`
	Sources []sourceResponse `json:"sources"`
}

type documentResponse struct {
	Filename   string `json:"filename"`
	Characters int    `json:"characters"`
}

type uploadResponse struct {
	Message   string             `json:"message"`
	Documents []documentResponse `json:"documents"`
	Skipped   []string           `json:"skipped,omitempty"`
	Chunks    int                `json:"chunks"`
	Summary   string             `json:"summary,omitempty"`
}

func (s *Server) handleIndexPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.pipeline.IndexStatus(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"index": gin.H{
			"location":  st.Location,
			"available": st.Available,
			"chunks":    st.Chunks,
			"metric":    st.Metric,
			"error":     st.Error,
		},
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.cfg.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.cfg.MaxUploadMB)<<20)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, err)
			return
		}
		s.fail(c, domain.ErrNoFile)
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		s.fail(c, domain.ErrNoFile)
		return
	}

	docs := make([]domain.Document, 0, len(headers))
	for _, fh := range headers {
		doc, err := readUpload(fh)
		if err != nil {
			s.fail(c, err)
			return
		}
		docs = append(docs, doc)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.pipeline.Ingest(ctx, docs)
	if err != nil {
		s.fail(c, err)
		return
	}

	if !wantsJSON(c) {
		c.String(http.StatusOK, MsgIngested)
		return
	}
	resp := uploadResponse{
		Message: MsgIngested,
		Skipped: res.Skipped,
		Chunks:  res.Chunks,
		Summary: res.Summary,
	}
	for _, d := range res.Documents {
		resp.Documents = append(resp.Documents, documentResponse{Filename: d.Filename, Characters: d.Characters})
	}
	c.JSON(http.StatusOK, resp)
}

func readUpload(fh *multipart.FileHeader) (domain.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.Document{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}
	return domain.Document{Filename: filepath.Base(fh.Filename), Content: content}, nil
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBind(&req); err != nil {
		s.fail(c, domain.ErrNoQuestion)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	answer, err := s.pipeline.Ask(ctx, req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}

	if !wantsJSON(c) {
		c.String(http.StatusOK, answer.Text)
		return
	}
	c.JSON(http.StatusOK, newAskResponse(answer))
}

func newAskResponse(a *service.Answer) askResponse {
	resp := askResponse{Answer: a.Text, Sources: make([]sourceResponse, 0, len(a.Sources))}
	for _, r := range a.Sources {
		resp.Sources = append(resp.Sources, sourceResponse{
			Index:  r.Chunk.Index,
			Offset: r.Chunk.Offset,
			Score:  r.Score,
			Text:   r.Chunk.Text,
		})
	}
	return resp
}
