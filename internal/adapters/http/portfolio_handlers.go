package http

import (
	"mime"
	nethttp "net/http"
	"path/filepath"
	"strconv"

	"github.com/dkeye/ReviewHub/internal/app/portfolio"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/gin-gonic/gin"
)

func (a *api) addPortfolioItem(c *gin.Context) {
	c.Request.Body = nethttp.MaxBytesReader(c.Writer, c.Request.Body, a.maxUpload+1<<20)
	f, fh, ok := formFile(c)
	if !ok {
		return
	}
	defer f.Close()

	it, err := a.portfolio.Add(c.Request.Context(), currentUser(c), portfolio.AddInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    fh.Filename,
		Body:        f,
		ProjectID:   domain.ProjectID(c.PostForm("project_id")),
	})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, it)
}

func (a *api) listPortfolio(c *gin.Context) {
	items, err := a.portfolio.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		abortError(c, err)
		return
	}
	if items == nil {
		items = []domain.PortfolioItem{}
	}
	c.JSON(nethttp.StatusOK, gin.H{"items": items})
}

func (a *api) deletePortfolioItem(c *gin.Context) {
	if err := a.portfolio.Delete(c.Request.Context(), currentUser(c), domain.PortfolioItemID(c.Param("id"))); err != nil {
		abortError(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

func (a *api) gallery(c *gin.Context) {
	g, err := a.portfolio.Gallery(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, g)
}

func (a *api) galleryMedia(c *gin.Context) {
	rc, it, err := a.portfolio.OpenMedia(c.Request.Context(), c.Param("username"), domain.PortfolioItemID(c.Param("id")))
	if err != nil {
		abortError(c, err)
		return
	}
	defer rc.Close()
	ct := mime.TypeByExtension(filepath.Ext(it.FileName))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(nethttp.StatusOK, -1, ct, rc, map[string]string{
		"Content-Disposition": "inline; filename=" + strconv.Quote(it.FileName),
		"Cache-Control":       "public, max-age=300",
	})
}
