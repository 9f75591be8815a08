// Package cost 提供已验证解的多目标成本评估
package cost

import (
	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/model"
)

// Metrics 解的成本指标
// 各指标独立计算，不折算成单一目标；加权组合留给调用方
type Metrics struct {
	TotalTardiness   int `json:"total_tardiness"`   // 超出时间窗结束的总迟到
	MaxTardiness     int `json:"max_tardiness"`     // 单次访问的最大迟到
	TraveledDistance int `json:"traveled_distance"` // 全体护理员的行程时间合计
	TotalWaitingTime int `json:"total_waiting_time"`
	MaxWaitingTime   int `json:"max_waiting_time"`
	ExtraTime        int `json:"extra_time"` // 超出班次结束的加班合计
	UnderLoad        int `json:"under_load"`
	OverLoad         int `json:"over_load"`
	Balance          int `json:"balance"` // UnderLoad + OverLoad

	MinLoad int `json:"min_load"` // floor(需求总数 / 护理员数)
	MaxLoad int `json:"max_load"` // ceil(需求总数 / 护理员数)

	Caregivers []CaregiverMetrics `json:"caregivers"` // 按路线的明细
}

// CaregiverMetrics 单名护理员的成本明细
type CaregiverMetrics struct {
	CaregiverID      string `json:"caregiver_id"`
	Visits           int    `json:"visits"`
	Load             int    `json:"load"` // 路线位置数，含出发/返回段
	TraveledDistance int    `json:"traveled_distance"`
	WaitingTime      int    `json:"waiting_time"`
	ExtraTime        int    `json:"extra_time"`
}

// Evaluator 针对一个实例的成本评估器
type Evaluator struct {
	ins *model.Instance
}

// NewEvaluator 创建成本评估器
func NewEvaluator(ins *model.Instance) *Evaluator {
	return &Evaluator{ins: ins}
}

// Evaluate 计算已验证解的成本指标
// 解必须已通过验证器：所有路线为完整形态、所有到达时刻已填充
func (e *Evaluator) Evaluate(sol *model.Solution) (*Metrics, error) {
	m := &Metrics{}

	servicesToProvide := 0
	for _, p := range e.ins.Patients {
		servicesToProvide += len(p.RequiredServices)
	}
	if n := len(e.ins.Caregivers); n > 0 {
		m.MinLoad = servicesToProvide / n
		m.MaxLoad = (servicesToProvide + n - 1) / n
	}

	for _, r := range sol.Routes {
		if !r.IsFull() {
			return nil, errors.Verification(errors.CodeNotNormalized,
				"护理员 %s 的路线尚未归一化，不能评估成本", r.CaregiverID)
		}
		cm, err := e.evaluateRoute(r)
		if err != nil {
			return nil, err
		}

		m.TraveledDistance += cm.TraveledDistance
		m.TotalWaitingTime += cm.WaitingTime
		m.ExtraTime += cm.ExtraTime
		if cm.Load < m.MinLoad {
			m.UnderLoad += m.MinLoad - cm.Load
		}
		if cm.Load > m.MaxLoad {
			m.OverLoad += cm.Load - m.MaxLoad
		}
		m.Caregivers = append(m.Caregivers, *cm)
	}
	m.Balance = m.UnderLoad + m.OverLoad

	for _, av := range sol.Visits() {
		patient := e.ins.Patient(av.Visit.Patient)
		if patient == nil {
			return nil, errors.Verification(errors.CodeUnknownPatient,
				"访问引用的患者 %s 不在实例中", av.Visit.Patient)
		}
		if patient.TimeWindow != nil {
			if late := av.Visit.StartServiceTime - patient.TimeWindow.End; late > 0 {
				m.TotalTardiness += late
				if late > m.MaxTardiness {
					m.MaxTardiness = late
				}
			}
		}
		if wait := av.Visit.StartServiceTime - av.Visit.Arrival(); wait > m.MaxWaitingTime {
			m.MaxWaitingTime = wait
		}
	}
	return m, nil
}

// evaluateRoute 计算单条路线的行程、等待与加班
func (e *Evaluator) evaluateRoute(r *model.CaregiverRoute) (*CaregiverMetrics, error) {
	caregiver := e.ins.Caregiver(r.CaregiverID)
	if caregiver == nil {
		return nil, errors.Verification(errors.CodeUnknownCaregiver,
			"路线引用的护理员 %s 不在实例中", r.CaregiverID)
	}
	depot := e.ins.DepartingPoint(caregiver.DepartingPoint)

	cm := &CaregiverMetrics{
		CaregiverID: r.CaregiverID,
		Load:        len(r.Locations),
	}
	prevIndex := depot.DistanceMatrixIndex
	for _, visit := range r.Visits() {
		patient := e.ins.Patient(visit.Patient)
		cm.TraveledDistance += e.ins.TravelTime(prevIndex, patient.DistanceMatrixIndex)
		if !visit.HasArrival() {
			return nil, errors.Verification(errors.CodeNotNormalized,
				"护理员 %s 对患者 %s 的访问缺少到达时刻，不能评估成本", r.CaregiverID, visit.Patient)
		}
		if wait := visit.StartServiceTime - visit.Arrival(); wait > 0 {
			cm.WaitingTime += wait
		}
		cm.Visits++
		prevIndex = patient.DistanceMatrixIndex
	}
	cm.TraveledDistance += e.ins.TravelTime(prevIndex, depot.DistanceMatrixIndex)

	if caregiver.WorkingShift != nil {
		if over := r.ArrivalLeg().ArrivalTime - caregiver.WorkingShift.End; over > 0 {
			cm.ExtraTime = over
		}
	}
	return cm, nil
}
