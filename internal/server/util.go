package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// parseIndex reads the :idx path parameter and checks it against capacity.
// On failure it writes a 400 response and reports false.
func parseIndex(c *gin.Context, capacity int) (int, bool) {
	raw := c.Param("idx")
	idx, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: fmt.Sprintf("invalid index %q", raw)})
		return 0, false
	}
	if idx < 0 || idx >= capacity {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: fmt.Sprintf("index %d out of range [0,%d)", idx, capacity)})
		return 0, false
	}
	return idx, true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
