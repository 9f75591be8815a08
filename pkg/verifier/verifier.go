package verifier

import (
	"time"

	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/logger"
	"github.com/shangmen/shangmen/pkg/model"
)

// Verifier 针对一个已校验实例的解验证器
// 验证过程的唯一副作用是原地归一化路线与惰性推断到达时刻，两者均幂等且只增不改
type Verifier struct {
	ins *model.Instance
	log *logger.ValidatorLogger
}

// New 创建解验证器
func New(ins *model.Instance) *Verifier {
	return &Verifier{ins: ins, log: logger.NewValidatorLogger()}
}

// Check 按固定顺序执行全部交叉检查，遇错即止
// 成功后保证：所有路线都是完整形态，所有访问的到达时刻都已填充
func (v *Verifier) Check(sol *model.Solution) error {
	start := time.Now()
	v.log.StartCheck(v.ins.Name, len(sol.Routes), len(v.ins.Patients))

	checks := []func(*model.Solution) error{
		v.checkCoverage,
		v.checkAssignments,
		v.normalizeRoutes,
		v.checkRouteTiming,
		v.checkServiceDurations,
		v.checkWorkingShifts,
		v.checkSynchronizations,
		v.checkTimeWindows,
		v.checkQualifications,
	}
	for _, check := range checks {
		if err := check(sol); err != nil {
			v.log.RuleViolation(string(errors.GetCode(err)), err.Error())
			v.log.CheckComplete(v.ins.Name, time.Since(start), false)
			return err
		}
	}
	v.log.CheckComplete(v.ins.Name, time.Since(start), true)
	return nil
}

// checkCoverage 访问到的患者集合必须恰好等于实例的患者集合
func (v *Verifier) checkCoverage(sol *model.Solution) error {
	visited := make(map[string]bool)
	for _, av := range sol.Visits() {
		if v.ins.Patient(av.Visit.Patient) == nil {
			return errors.Verification(errors.CodeUnknownPatient,
				"护理员 %s 访问的患者 %s 不在实例中", av.CaregiverID, av.Visit.Patient)
		}
		visited[av.Visit.Patient] = true
	}
	for _, p := range v.ins.Patients {
		if !visited[p.ID] {
			return errors.Verification(errors.CodeUncoveredPatient,
				"患者 %s 没有任何访问", p.ID)
		}
	}
	return nil
}

// checkAssignments 每对 (患者, 服务需求) 必须恰好由一次访问提供
func (v *Verifier) checkAssignments(sol *model.Solution) error {
	providers := make(map[string]map[string][]string) // 患者 → 服务 → 护理员列表
	for _, av := range sol.Visits() {
		patient := v.ins.Patient(av.Visit.Patient)
		if patient.Requires(av.Visit.Service) == nil {
			return errors.Verification(errors.CodeUnmetRequirement,
				"护理员 %s 为患者 %s 提供了未被需要的服务 %s",
				av.CaregiverID, av.Visit.Patient, av.Visit.Service)
		}
		if providers[av.Visit.Patient] == nil {
			providers[av.Visit.Patient] = make(map[string][]string)
		}
		providers[av.Visit.Patient][av.Visit.Service] =
			append(providers[av.Visit.Patient][av.Visit.Service], av.CaregiverID)
	}
	for _, p := range v.ins.Patients {
		for _, rs := range p.RequiredServices {
			ids := providers[p.ID][rs.Service]
			switch {
			case len(ids) == 0:
				return errors.Verification(errors.CodeUnmetRequirement,
					"患者 %s 需要的服务 %s 没有访问提供", p.ID, rs.Service)
			case len(ids) > 1:
				return errors.Verification(errors.CodeConflictingVisits,
					"患者 %s 的服务 %s 被多名护理员提供 (%v)", p.ID, rs.Service, ids)
			}
		}
	}
	return nil
}

// normalizeRoutes 对所有部分路线应用归一化
func (v *Verifier) normalizeRoutes(sol *model.Solution) error {
	for _, r := range sol.Routes {
		if err := Normalize(v.ins, r); err != nil {
			return err
		}
	}
	return nil
}

// checkRouteTiming 按行程时间检查路线时序，并惰性推断缺失的到达时刻
// 护理员可以等待（到达早于开始），但不能抢跑（开始早于可达时刻）
func (v *Verifier) checkRouteTiming(sol *model.Solution) error {
	for _, r := range sol.Routes {
		caregiver := v.ins.Caregiver(r.CaregiverID)
		if caregiver == nil {
			return errors.Verification(errors.CodeUnknownCaregiver,
				"路线引用的护理员 %s 不在实例中", r.CaregiverID)
		}
		depot := v.ins.DepartingPoint(caregiver.DepartingPoint)

		prevTime := r.Departure().DepartingTime
		prevIndex := depot.DistanceMatrixIndex
		for _, visit := range r.Visits() {
			patient := v.ins.Patient(visit.Patient)
			travel := v.ins.TravelTime(prevIndex, patient.DistanceMatrixIndex)
			reachable := prevTime + travel
			visit.SetArrival(reachable)
			if visit.Arrival() < reachable {
				return errors.Verification(errors.CodeTravelInfeasible,
					"护理员 %s 声明 %d 到达患者 %s，但离开上一位置的时刻 %d 加行程 %d 最早 %d 才能到达",
					r.CaregiverID, visit.Arrival(), visit.Patient, prevTime, travel, reachable)
			}
			if visit.StartServiceTime < visit.Arrival() {
				return errors.Verification(errors.CodeTravelInfeasible,
					"护理员 %s 对患者 %s 的服务开始于 %d，早于到达时刻 %d",
					r.CaregiverID, visit.Patient, visit.StartServiceTime, visit.Arrival())
			}
			prevTime = visit.EndServiceTime
			prevIndex = patient.DistanceMatrixIndex
		}

		arrival := r.ArrivalLeg()
		travel := v.ins.TravelTime(prevIndex, depot.DistanceMatrixIndex)
		if arrival.ArrivalTime < prevTime+travel {
			return errors.Verification(errors.CodeTravelInfeasible,
				"护理员 %s 声明 %d 回到出发点，但末次访问结束于 %d，加行程 %d 最早 %d 才能返回",
				r.CaregiverID, arrival.ArrivalTime, prevTime, travel, prevTime+travel)
		}
	}
	return nil
}

// checkServiceDurations 每次访问的时长不得短于需求的实际时长（可以更长）
func (v *Verifier) checkServiceDurations(sol *model.Solution) error {
	for _, av := range sol.Visits() {
		rs := v.ins.Patient(av.Visit.Patient).Requires(av.Visit.Service)
		elapsed := av.Visit.EndServiceTime - av.Visit.StartServiceTime
		if elapsed < rs.ActualDuration() {
			return errors.Verification(errors.CodeServiceTooShort,
				"护理员 %s 对患者 %s 的服务 %s 仅持续 %d 分钟，少于要求的 %d 分钟",
				av.CaregiverID, av.Visit.Patient, av.Visit.Service, elapsed, rs.ActualDuration())
		}
	}
	return nil
}

// checkWorkingShifts 路线出发时刻不得早于护理员班次开始
// 班次结束是软约束，由成本评估器按加班时间计费
func (v *Verifier) checkWorkingShifts(sol *model.Solution) error {
	for _, r := range sol.Routes {
		caregiver := v.ins.Caregiver(r.CaregiverID)
		if caregiver.WorkingShift == nil {
			continue
		}
		if dep := r.Departure(); dep.DepartingTime < caregiver.WorkingShift.Start {
			return errors.Verification(errors.CodeShiftViolation,
				"护理员 %s 需要在 %d 出发，早于其班次开始时刻 %d",
				r.CaregiverID, dep.DepartingTime, caregiver.WorkingShift.Start)
		}
	}
	return nil
}

// checkSynchronizations 双服务患者的两次访问必须满足同步规则
// 两次访问必须由不同护理员提供；simultaneous 要求同刻开始，sequential 要求偏移落在区间内
func (v *Verifier) checkSynchronizations(sol *model.Solution) error {
	byPatient := make(map[string][]model.AttributedVisit)
	for _, av := range sol.Visits() {
		byPatient[av.Visit.Patient] = append(byPatient[av.Visit.Patient], av)
	}
	for _, p := range v.ins.Patients {
		if len(p.RequiredServices) != 2 {
			continue
		}
		visits := byPatient[p.ID]
		if len(visits) != 2 {
			return errors.Verification(errors.CodeSyncViolation,
				"患者 %s 需要两次访问，实际 %d 次", p.ID, len(visits))
		}
		if visits[0].CaregiverID == visits[1].CaregiverID {
			return errors.Verification(errors.CodeSyncViolation,
				"患者 %s 的两项服务不能都由护理员 %s 提供", p.ID, visits[0].CaregiverID)
		}

		var t0, t1 int
		for _, av := range visits {
			switch av.Visit.Service {
			case p.RequiredServices[0].Service:
				t0 = av.Visit.StartServiceTime
			case p.RequiredServices[1].Service:
				t1 = av.Visit.StartServiceTime
			}
		}
		switch p.Synchronization.Type {
		case model.SyncSimultaneous:
			if t0 != t1 {
				return errors.Verification(errors.CodeSyncViolation,
					"患者 %s 要求同时服务，实际开始于 %d 和 %d", p.ID, t0, t1)
			}
		case model.SyncSequential:
			dist := p.Synchronization.Distance
			if t1 < t0+dist.Min || t1 > t0+dist.Max {
				return errors.Verification(errors.CodeSyncViolation,
					"患者 %s 的第二项服务开始于 %d，超出允许区间 [%d, %d]（首项开始于 %d，偏移 [%d, %d]）",
					p.ID, t1, t0+dist.Min, t0+dist.Max, t0, dist.Min, dist.Max)
			}
		}
	}
	return nil
}

// checkTimeWindows 访问不得早于患者时间窗开始；迟到允许，由成本评估器计费
func (v *Verifier) checkTimeWindows(sol *model.Solution) error {
	for _, av := range sol.Visits() {
		patient := v.ins.Patient(av.Visit.Patient)
		if patient.TimeWindow == nil {
			continue
		}
		if av.Visit.StartServiceTime < patient.TimeWindow.Start {
			return errors.Verification(errors.CodeTimeWindow,
				"护理员 %s 在 %d 开始服务患者 %s，早于时间窗开始 %d",
				av.CaregiverID, av.Visit.StartServiceTime, av.Visit.Patient, patient.TimeWindow.Start)
		}
	}
	return nil
}

// checkQualifications 每次访问的服务必须在执行护理员的能力集合内
func (v *Verifier) checkQualifications(sol *model.Solution) error {
	for _, r := range sol.Routes {
		caregiver := v.ins.Caregiver(r.CaregiverID)
		for _, visit := range r.Visits() {
			if !caregiver.CanProvide(visit.Service) {
				return errors.Verification(errors.CodeQualification,
					"护理员 %s 不具备为患者 %s 提供服务 %s 的资质",
					r.CaregiverID, visit.Patient, visit.Service)
			}
		}
	}
	return nil
}
