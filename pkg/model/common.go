// Package model 定义 HHCRSP 实例与解的核心数据模型
package model

// SynchronizationType 双服务同步类型
type SynchronizationType string

const (
	SyncSimultaneous SynchronizationType = "simultaneous" // 同时开始
	SyncSequential   SynchronizationType = "sequential"   // 先后开始（带偏移区间）
)

// TimeWindow 时间区间 [Start, End)，单位分钟
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Width 返回区间宽度
func (tw TimeWindow) Width() int {
	return tw.End - tw.Start
}

// IsValid 检查区间合法性
func (tw TimeWindow) IsValid() bool {
	return tw.Start < tw.End
}

// Coordinates 地理坐标（仅用于生成器产物的透传，核心不做几何计算）
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// DepartingPoint 出发点（护理员的起止站点）
type DepartingPoint struct {
	ID                  string       `json:"id"`
	DistanceMatrixIndex int          `json:"distance_matrix_index"`
	Location            *Coordinates `json:"location,omitempty"`
}

// Caregiver 护理员
type Caregiver struct {
	ID                  string      `json:"id"`
	Abilities           []string    `json:"abilities"` // 可提供的服务ID集合，非空
	DistanceMatrixIndex int         `json:"distance_matrix_index"`
	DepartingPoint      string      `json:"departing_point"`
	WorkingShift        *TimeWindow `json:"working_shift,omitempty"`
}

// CanProvide 检查护理员是否能提供某服务
func (c *Caregiver) CanProvide(serviceID string) bool {
	for _, a := range c.Abilities {
		if a == serviceID {
			return true
		}
	}
	return false
}

// Service 服务定义
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	DefaultDuration int    `json:"default_duration,omitempty"` // 分钟，0 表示未定义
}

// RequiredService 患者的一项服务需求
type RequiredService struct {
	Service  string `json:"service"`
	Duration int    `json:"duration,omitempty"` // 显式时长，0 表示沿用服务默认时长

	// 实际时长在实例校验时解析一次，此后只读，不参与序列化
	actualDuration int
}

// ActualDuration 返回解析后的实际时长（分钟）
func (rs *RequiredService) ActualDuration() int {
	return rs.actualDuration
}

// DistanceRange 顺序同步的起始偏移区间 [Min, Max]
type DistanceRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Synchronization 同一患者两项服务之间的时间耦合规则
type Synchronization struct {
	Type     SynchronizationType `json:"type"`
	Distance *DistanceRange      `json:"distance,omitempty"` // 仅 sequential 使用
}

// Patient 患者
type Patient struct {
	ID                     string             `json:"id"`
	RequiredServices       []*RequiredService `json:"required_services"` // 1–2 项
	DistanceMatrixIndex    int                `json:"distance_matrix_index"`
	TimeWindow             *TimeWindow        `json:"time_window,omitempty"`
	Location               *Coordinates       `json:"location,omitempty"`
	Synchronization        *Synchronization   `json:"synchronization,omitempty"`
	IncompatibleCaregivers []string           `json:"incompatible_caregivers,omitempty"`
}

// Requires 检查患者是否需要某服务，返回对应的需求项
func (p *Patient) Requires(serviceID string) *RequiredService {
	for _, rs := range p.RequiredServices {
		if rs.Service == serviceID {
			return rs
		}
	}
	return nil
}

// IsIncompatibleWith 检查某护理员是否被患者排除
func (p *Patient) IsIncompatibleWith(caregiverID string) bool {
	for _, id := range p.IncompatibleCaregivers {
		if id == caregiverID {
			return true
		}
	}
	return false
}
