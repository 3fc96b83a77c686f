package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-tables/internal/service/document"
	"github.com/feichai0017/document-tables/pkg/logger"
)

type DepartmentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

type createDepartmentRequest struct {
	Name string `json:"name" binding:"required"`
}

func NewDepartmentHandler(service document.DocumentProcessor, logger logger.Logger) *DepartmentHandler {
	return &DepartmentHandler{service: service, logger: logger.Named("departments")}
}

func (h *DepartmentHandler) List(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	depts, err := h.service.ListDepartments(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": depts})
}

func (h *DepartmentHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	departmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	dept, err := h.service.GetDepartment(c.Request.Context(), id, departmentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dept)
}

func (h *DepartmentHandler) Create(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req createDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body must be a JSON object with a name")
		return
	}
	dept, err := h.service.CreateDepartment(c.Request.Context(), id, req.Name)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, dept)
}

func (h *DepartmentHandler) Update(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	departmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body must be a JSON object with a name")
		return
	}
	dept, err := h.service.UpdateDepartment(c.Request.Context(), id, departmentID, req.Name)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dept)
}

// Delete removes the department with every document and table it owns.
func (h *DepartmentHandler) Delete(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	departmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.DeleteDepartment(c.Request.Context(), id, departmentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DepartmentHandler) Stats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	departmentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.service.DepartmentStats(c.Request.Context(), id, departmentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *DepartmentHandler) Summary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	summary, err := h.service.DepartmentSummary(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": summary})
}
