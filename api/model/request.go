package model

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// StorageEventRequest 存储事件通知请求
// 对应对象存储的对象创建事件
type StorageEventRequest struct {
	Bucket      string `json:"bucket" binding:"required"`        // 触发对象所在的桶
	Name        string `json:"name" binding:"required"`          // 触发对象的完整路径
	Generation  string `json:"generation" binding:"omitempty"`   // 对象版本号
	ContentType string `json:"content_type" binding:"omitempty"` // 对象内容类型
	Async       bool   `json:"async" binding:"omitempty"`        // 是否投递到任务队列异步处理
}

// RunStatusRequest 处理记录查询请求
type RunStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 处理记录ID
}

// RunListRequest 处理记录列表请求
type RunListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty"` // 状态过滤
}
