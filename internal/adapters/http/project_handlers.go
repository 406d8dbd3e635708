package http

import (
	"fmt"
	"mime/multipart"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/app/projects"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/gin-gonic/gin"
)

// projectView is the public shape of a project.
type projectView struct {
	*domain.Project
	Protected bool `json:"protected"`
}

func viewOf(p *domain.Project) projectView {
	return projectView{Project: p, Protected: p.Protected()}
}

// formFile opens the multipart "file" part, mapping oversized bodies to 413.
func formFile(c *gin.Context) (multipart.File, *multipart.FileHeader, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		if status, _ := statusFor(err); status == nethttp.StatusRequestEntityTooLarge {
			abortError(c, err)
		} else {
			badRequest(c, fmt.Errorf("file: %w", err))
		}
		return nil, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		abortError(c, err)
		return nil, nil, false
	}
	return f, fh, true
}

func parseExpiresIn(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("expires_in %q: %w", raw, domain.ErrInvalid)
	}
	return d, nil
}

func (a *api) uploadProject(c *gin.Context) {
	c.Request.Body = nethttp.MaxBytesReader(c.Writer, c.Request.Body, a.maxUpload+1<<20)
	f, fh, ok := formFile(c)
	if !ok {
		return
	}
	defer f.Close()
	expiresIn, err := parseExpiresIn(c.PostForm("expires_in"))
	if err != nil {
		abortError(c, err)
		return
	}

	p, err := a.projects.Upload(c.Request.Context(), currentUser(c), projects.UploadInput{
		Name:      c.PostForm("name"),
		FileName:  fh.Filename,
		Body:      f,
		Password:  c.PostForm("password"),
		ExpiresIn: expiresIn,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, viewOf(p))
}

func (a *api) listProjects(c *gin.Context) {
	list, err := a.projects.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		abortError(c, err)
		return
	}
	out := make([]projectView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	c.JSON(nethttp.StatusOK, gin.H{"projects": out})
}

func (a *api) getProject(c *gin.Context) {
	p, err := a.projects.Get(c.Request.Context(), domain.ProjectID(c.Param("id")))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, viewOf(p))
}

type shareRequest struct {
	Password      *string `json:"password"`
	ClearPassword bool    `json:"clear_password"`
	ExpiresIn     *string `json:"expires_in"`
}

func (a *api) updateSharing(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := projects.SharingInput{Password: req.Password, ClearPassword: req.ClearPassword}
	if req.ExpiresIn != nil {
		d, err := parseExpiresIn(*req.ExpiresIn)
		if err != nil || d == 0 {
			abortError(c, fmt.Errorf("expires_in: %w", domain.ErrInvalid))
			return
		}
		in.ExpiresIn = &d
	}
	p, err := a.projects.UpdateSharing(c.Request.Context(), currentUser(c), domain.ProjectID(c.Param("id")), in)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, viewOf(p))
}

func (a *api) deleteProject(c *gin.Context) {
	if err := a.projects.Delete(c.Request.Context(), currentUser(c), domain.ProjectID(c.Param("id"))); err != nil {
		abortError(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

type unlockRequest struct {
	Password string `json:"password" binding:"required"`
}

func (a *api) unlockProject(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tok, exp, err := a.projects.Unlock(c.Request.Context(), domain.ProjectID(c.Param("id")), req.Password)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"token": tok, "expires_at": exp.UTC()})
}

// viewToken reads "Authorization: Bearer" first, then ?token=.
func viewToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func (a *api) downloadModel(c *gin.Context) {
	rc, p, err := a.projects.OpenModel(c.Request.Context(), domain.ProjectID(c.Param("id")), currentUser(c), viewToken(c))
	if err != nil {
		abortError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(nethttp.StatusOK, p.SizeBytes, p.Format.ContentType(), rc, map[string]string{
		"Content-Disposition": "inline; filename=" + strconv.Quote(p.FileName),
		"Cache-Control":       "private, no-store",
	})
}
