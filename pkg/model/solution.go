package model

import (
	"encoding/json"

	"github.com/shangmen/shangmen/pkg/errors"
)

// RouteLocation 路线上的一个位置：出发点离开、患者访问或出发点返回
type RouteLocation interface {
	routeLocation()
}

// DepotDeparture 从出发点离开
type DepotDeparture struct {
	Depot         string `json:"depot"`
	DepartingTime int    `json:"departing_time"`
}

// DepotArrival 回到出发点
type DepotArrival struct {
	Depot       string `json:"depot"`
	ArrivalTime int    `json:"arrival_time"`
}

// PatientVisit 一次患者访问
type PatientVisit struct {
	Patient          string `json:"patient"`
	Service          string `json:"service"`
	StartServiceTime int    `json:"start_service_time"`
	EndServiceTime   int    `json:"end_service_time"`
	// 到达患者处的时刻，可以显式声明，也可以由验证器按行程时间惰性推断
	ArrivalAtPatient *int `json:"arrival_at_patient,omitempty"`
}

func (*DepotDeparture) routeLocation() {}
func (*DepotArrival) routeLocation()   {}
func (*PatientVisit) routeLocation()   {}

// HasArrival 检查到达时刻是否已知
func (v *PatientVisit) HasArrival() bool {
	return v.ArrivalAtPatient != nil
}

// Arrival 返回到达时刻，未知时返回 0
func (v *PatientVisit) Arrival() int {
	if v.ArrivalAtPatient == nil {
		return 0
	}
	return *v.ArrivalAtPatient
}

// SetArrival 填入推断出的到达时刻；只增不改，已声明的值不被覆盖
func (v *PatientVisit) SetArrival(t int) {
	if v.ArrivalAtPatient == nil {
		v.ArrivalAtPatient = &t
	}
}

// CaregiverRoute 一名护理员的路线
// 完整形态：[出发, 访问…, 返回]（至少一次访问）；部分形态：仅访问序列
type CaregiverRoute struct {
	CaregiverID string          `json:"caregiver_id"`
	Locations   []RouteLocation `json:"locations"`
}

// IsFull 检查路线是否为完整形态（出发点括起）
func (r *CaregiverRoute) IsFull() bool {
	if len(r.Locations) == 0 {
		return false
	}
	_, ok := r.Locations[0].(*DepotDeparture)
	return ok
}

// Departure 返回出发段，部分路线返回 nil
func (r *CaregiverRoute) Departure() *DepotDeparture {
	if len(r.Locations) == 0 {
		return nil
	}
	d, _ := r.Locations[0].(*DepotDeparture)
	return d
}

// ArrivalLeg 返回返回段，部分路线返回 nil
func (r *CaregiverRoute) ArrivalLeg() *DepotArrival {
	if len(r.Locations) == 0 {
		return nil
	}
	a, _ := r.Locations[len(r.Locations)-1].(*DepotArrival)
	return a
}

// Visits 返回路线上的全部患者访问（按顺序）
func (r *CaregiverRoute) Visits() []*PatientVisit {
	visits := make([]*PatientVisit, 0, len(r.Locations))
	for _, loc := range r.Locations {
		if v, ok := loc.(*PatientVisit); ok {
			visits = append(visits, v)
		}
	}
	return visits
}

// Validate 路线自检：形态、各访问的区间、时间单调性
func (r *CaregiverRoute) Validate() error {
	if r.CaregiverID == "" {
		return errors.InvalidInput("caregiver_id", "路线缺少护理员标识")
	}
	if len(r.Locations) == 0 {
		return errors.Validation(errors.CodeEmptyRoute, "护理员 %s 的路线为空", r.CaregiverID)
	}

	full := r.IsFull()
	if full {
		if len(r.Locations) < 3 {
			return errors.Validation(errors.CodeRouteShape,
				"护理员 %s 的完整路线必须至少包含一次访问", r.CaregiverID)
		}
		if _, ok := r.Locations[len(r.Locations)-1].(*DepotArrival); !ok {
			return errors.Validation(errors.CodeRouteShape,
				"护理员 %s 的完整路线必须以返回出发点结束", r.CaregiverID)
		}
		for i := 1; i < len(r.Locations)-1; i++ {
			if _, ok := r.Locations[i].(*PatientVisit); !ok {
				return errors.Validation(errors.CodeRouteShape,
					"护理员 %s 路线的第 %d 个位置应为患者访问", r.CaregiverID, i)
			}
		}
	} else {
		for i, loc := range r.Locations {
			if _, ok := loc.(*PatientVisit); !ok {
				return errors.Validation(errors.CodeRouteShape,
					"护理员 %s 的部分路线只能包含患者访问（第 %d 个位置不是）", r.CaregiverID, i)
			}
		}
	}

	visits := r.Visits()
	for _, v := range visits {
		if v.Patient == "" || v.Service == "" {
			return errors.InvalidInput("locations", "访问缺少患者或服务标识")
		}
		if v.StartServiceTime >= v.EndServiceTime {
			return errors.Validation(errors.CodeRouteChronology,
				"护理员 %s 对患者 %s 的访问时间区间不合法 [%d, %d)",
				r.CaregiverID, v.Patient, v.StartServiceTime, v.EndServiceTime)
		}
		if v.HasArrival() && v.Arrival() > v.StartServiceTime {
			return errors.Validation(errors.CodeRouteChronology,
				"护理员 %s 对患者 %s 的到达时刻 %d 晚于服务开始时刻 %d",
				r.CaregiverID, v.Patient, v.Arrival(), v.StartServiceTime)
		}
	}
	for i := 0; i < len(visits)-1; i++ {
		if visits[i].EndServiceTime > visits[i+1].StartServiceTime {
			return errors.Validation(errors.CodeRouteChronology,
				"护理员 %s 的访问顺序颠倒：患者 %s 结束于 %d，患者 %s 却开始于 %d",
				r.CaregiverID, visits[i].Patient, visits[i].EndServiceTime,
				visits[i+1].Patient, visits[i+1].StartServiceTime)
		}
	}
	if full {
		last := visits[len(visits)-1]
		if arr := r.ArrivalLeg(); arr.ArrivalTime < last.EndServiceTime {
			return errors.Validation(errors.CodeRouteChronology,
				"护理员 %s 的返回时刻 %d 早于最后一次访问的结束时刻 %d",
				r.CaregiverID, arr.ArrivalTime, last.EndServiceTime)
		}
	}
	return nil
}

// routeLocationProbe 用于区分位置类型的探测结构
// 判别规则：含 patient 为访问；含 departing_time 为出发段；含 arrival_time 为返回段
type routeLocationProbe struct {
	Patient       *string `json:"patient"`
	DepartingTime *int    `json:"departing_time"`
	ArrivalTime   *int    `json:"arrival_time"`
}

// UnmarshalJSON 解码带判别的位置列表
func (r *CaregiverRoute) UnmarshalJSON(data []byte) error {
	var raw struct {
		CaregiverID string            `json:"caregiver_id"`
		Locations   []json.RawMessage `json:"locations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.CaregiverID = raw.CaregiverID
	r.Locations = make([]RouteLocation, 0, len(raw.Locations))
	for i, msg := range raw.Locations {
		var probe routeLocationProbe
		if err := json.Unmarshal(msg, &probe); err != nil {
			return err
		}
		var loc RouteLocation
		switch {
		case probe.Patient != nil:
			loc = &PatientVisit{}
		case probe.DepartingTime != nil:
			loc = &DepotDeparture{}
		case probe.ArrivalTime != nil:
			loc = &DepotArrival{}
		default:
			return errors.Validation(errors.CodeRouteShape,
				"护理员 %s 路线的第 %d 个位置无法判别类型", raw.CaregiverID, i)
		}
		if err := json.Unmarshal(msg, loc); err != nil {
			return err
		}
		r.Locations = append(r.Locations, loc)
	}
	return nil
}

// Solution 候选解：每名护理员至多一条路线
type Solution struct {
	Instance string            `json:"instance,omitempty"` // 所属实例名，可选
	Routes   []*CaregiverRoute `json:"routes"`
}

// ParseSolution 从JSON构造并自检解
func ParseSolution(data []byte) (*Solution, error) {
	var sol Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "解JSON解析失败")
	}
	if err := sol.Validate(); err != nil {
		return nil, err
	}
	return &sol, nil
}

// Validate 解自检：护理员唯一 + 各路线自检
// 只覆盖解内部的一致性，跨实例检查由验证器负责
func (s *Solution) Validate() error {
	seen := make(map[string]bool, len(s.Routes))
	for _, r := range s.Routes {
		if seen[r.CaregiverID] {
			return errors.Validation(errors.CodeDuplicateRoute,
				"护理员 %s 出现在多条路线中", r.CaregiverID)
		}
		seen[r.CaregiverID] = true
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Normalized 检查解是否尚未携带任何显式到达时刻
// 为真表示全部到达时刻都有待按行程时间推断
func (s *Solution) Normalized() bool {
	for _, r := range s.Routes {
		for _, v := range r.Visits() {
			if v.HasArrival() {
				return false
			}
		}
	}
	return true
}

// Visits 返回全解的 (护理员, 访问) 对
func (s *Solution) Visits() []AttributedVisit {
	var visits []AttributedVisit
	for _, r := range s.Routes {
		for _, v := range r.Visits() {
			visits = append(visits, AttributedVisit{CaregiverID: r.CaregiverID, Visit: v})
		}
	}
	return visits
}

// AttributedVisit 带护理员归属的访问
type AttributedVisit struct {
	CaregiverID string
	Visit       *PatientVisit
}
