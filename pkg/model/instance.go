package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/logger"
)

// Instance 问题实例（聚合根）
// 构造后不可变；校验失败则整个对象不可用，不暴露部分合法的实例
type Instance struct {
	Name            string            `json:"name"`
	Area            []float64         `json:"area,omitempty"` // 地理包围盒，透传自生成器
	Distances       Matrix            `json:"distances"`
	DepartingPoints []*DepartingPoint `json:"departing_points"`
	Caregivers      []*Caregiver      `json:"caregivers"`
	Patients        []*Patient        `json:"patients"`
	Services        []*Service        `json:"services"`

	// 派生索引，校验成功后构建一次，不参与序列化与相等性
	departingPointIndex map[string]*DepartingPoint
	caregiverIndex      map[string]*Caregiver
	patientIndex        map[string]*Patient
	serviceIndex        map[string]*Service
}

// ParseInstance 从JSON构造并校验实例
func ParseInstance(data []byte) (*Instance, error) {
	var ins Instance
	if err := json.Unmarshal(data, &ins); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "实例JSON解析失败")
	}
	if err := ins.Validate(); err != nil {
		return nil, err
	}
	return &ins, nil
}

// Validate 按固定顺序执行全部不变量检查，全有或全无
// 顺序：实体内检查 → 矩阵形状 → 外键 → 矩阵索引 → 服务覆盖 → 不兼容集合 → 同步窗口
func (ins *Instance) Validate() error {
	checks := []func() error{
		ins.checkEntities,
		ins.checkMatrixShape,
		ins.checkReferences,
		ins.checkMatrixIndexes,
		ins.checkServiceCoverage,
		ins.checkIncompatibilities,
		ins.checkSynchronizationWindows,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	ins.buildIndexes()
	return nil
}

// checkEntities 实体自身的结构检查（标识、区间、需求条数、同步声明）
func (ins *Instance) checkEntities() error {
	if ins.Name == "" {
		return errors.InvalidInput("name", "实例名称不能为空")
	}
	seen := make(map[string]bool)
	for _, d := range ins.DepartingPoints {
		if d.ID == "" {
			return errors.InvalidInput("departing_points", "出发点标识不能为空")
		}
		if seen["d:"+d.ID] {
			return errors.Validation(errors.CodeValidationFail, "出发点 %s 重复声明", d.ID)
		}
		seen["d:"+d.ID] = true
	}
	for _, s := range ins.Services {
		if s.ID == "" || s.Type == "" {
			return errors.InvalidInput("services", "服务标识与类型不能为空")
		}
		if seen["s:"+s.ID] {
			return errors.Validation(errors.CodeValidationFail, "服务 %s 重复声明", s.ID)
		}
		seen["s:"+s.ID] = true
	}
	for _, c := range ins.Caregivers {
		if c.ID == "" {
			return errors.InvalidInput("caregivers", "护理员标识不能为空")
		}
		if seen["c:"+c.ID] {
			return errors.Validation(errors.CodeValidationFail, "护理员 %s 重复声明", c.ID)
		}
		seen["c:"+c.ID] = true
		if len(c.Abilities) == 0 {
			return errors.Validation(errors.CodeValidationFail, "护理员 %s 未声明任何可提供的服务", c.ID)
		}
		if c.WorkingShift != nil && !c.WorkingShift.IsValid() {
			return errors.Validation(errors.CodeInvalidTimeRange,
				"护理员 %s 的工作班次不合法 [%d, %d)", c.ID, c.WorkingShift.Start, c.WorkingShift.End)
		}
	}
	for _, p := range ins.Patients {
		if p.ID == "" {
			return errors.InvalidInput("patients", "患者标识不能为空")
		}
		if seen["p:"+p.ID] {
			return errors.Validation(errors.CodeValidationFail, "患者 %s 重复声明", p.ID)
		}
		seen["p:"+p.ID] = true
		if len(p.RequiredServices) < 1 || len(p.RequiredServices) > 2 {
			return errors.Validation(errors.CodeValidationFail,
				"患者 %s 应声明 1–2 项服务需求，实际 %d 项", p.ID, len(p.RequiredServices))
		}
		if p.TimeWindow != nil && !p.TimeWindow.IsValid() {
			return errors.Validation(errors.CodeInvalidTimeRange,
				"患者 %s 的时间窗不合法 [%d, %d)", p.ID, p.TimeWindow.Start, p.TimeWindow.End)
		}
		if len(p.RequiredServices) > 1 && p.Synchronization == nil {
			return errors.Validation(errors.CodeValidationFail,
				"患者 %s 需要两项服务时必须声明同步规则", p.ID)
		}
		if p.Synchronization != nil {
			switch p.Synchronization.Type {
			case SyncSimultaneous, SyncSequential:
			default:
				return errors.Validation(errors.CodeValidationFail,
					"患者 %s 的同步类型 %q 不合法", p.ID, p.Synchronization.Type)
			}
			if p.Synchronization.Type == SyncSequential {
				dist := p.Synchronization.Distance
				if dist == nil {
					return errors.Validation(errors.CodeSyncWindow,
						"患者 %s 的顺序同步缺少偏移区间", p.ID)
				}
				if dist.Min > dist.Max {
					return errors.Validation(errors.CodeSyncWindow,
						"患者 %s 的同步偏移区间不合法 [%d, %d]", p.ID, dist.Min, dist.Max)
				}
			}
		}
	}
	return nil
}

// checkMatrixShape 检查距离矩阵为 D+P 阶方阵
func (ins *Instance) checkMatrixShape() error {
	return ins.Distances.checkShape(len(ins.DepartingPoints) + len(ins.Patients))
}

// checkReferences 检查护理员与患者的外键，并解析需求的实际时长
func (ins *Instance) checkReferences() error {
	services := make(map[string]*Service, len(ins.Services))
	for _, s := range ins.Services {
		services[s.ID] = s
	}
	departingPoints := make(map[string]bool, len(ins.DepartingPoints))
	for _, d := range ins.DepartingPoints {
		departingPoints[d.ID] = true
	}

	for _, c := range ins.Caregivers {
		for _, a := range c.Abilities {
			if _, ok := services[a]; !ok {
				return errors.Validation(errors.CodeDanglingReference,
					"护理员 %s 声明的服务 %s 不在服务列表中", c.ID, a)
			}
		}
		if !departingPoints[c.DepartingPoint] {
			return errors.Validation(errors.CodeDanglingReference,
				"护理员 %s 的出发点 %s 不在出发点列表中", c.ID, c.DepartingPoint)
		}
	}

	for _, p := range ins.Patients {
		types := make(map[string]string, len(p.RequiredServices))
		for _, rs := range p.RequiredServices {
			svc, ok := services[rs.Service]
			if !ok {
				return errors.Validation(errors.CodeDanglingReference,
					"患者 %s 需要的服务 %s 不在服务列表中", p.ID, rs.Service)
			}
			// 实际时长 = 显式时长，否则服务默认时长；解析一次，必须为正
			rs.actualDuration = rs.Duration
			if rs.actualDuration == 0 {
				rs.actualDuration = svc.DefaultDuration
			}
			if rs.actualDuration <= 0 {
				return errors.Validation(errors.CodeInvalidDuration,
					"患者 %s 的服务 %s 无法解析出正的实际时长", p.ID, rs.Service)
			}
			if prev, dup := types[svc.Type]; dup {
				return errors.Validation(errors.CodeDuplicateServiceType,
					"患者 %s 需要的服务 %s 与 %s 类型相同 (%s)", p.ID, rs.Service, prev, svc.Type)
			}
			types[svc.Type] = rs.Service
		}
	}
	return nil
}

// checkMatrixIndexes 检查位置索引两两不同且恰好覆盖 [0, D+P)
func (ins *Instance) checkMatrixIndexes() error {
	side := len(ins.DepartingPoints) + len(ins.Patients)
	owners := make(map[int]string, side)
	for _, d := range ins.DepartingPoints {
		if owner, dup := owners[d.DistanceMatrixIndex]; dup {
			return errors.Validation(errors.CodeDuplicateMatrixIndex,
				"出发点 %s 的矩阵索引 %d 已被 %s 占用", d.ID, d.DistanceMatrixIndex, owner)
		}
		owners[d.DistanceMatrixIndex] = d.ID
	}
	for _, p := range ins.Patients {
		if owner, dup := owners[p.DistanceMatrixIndex]; dup {
			return errors.Validation(errors.CodeDuplicateMatrixIndex,
				"患者 %s 的矩阵索引 %d 已被 %s 占用", p.ID, p.DistanceMatrixIndex, owner)
		}
		owners[p.DistanceMatrixIndex] = p.ID
	}
	for i := 0; i < side; i++ {
		if _, ok := owners[i]; !ok {
			return errors.Validation(errors.CodeMatrixIndexGap,
				"矩阵索引 %d 未被任何出发点或患者占用", i)
		}
	}
	return nil
}

// checkServiceCoverage 检查患者需要的每项服务至少有一名护理员可提供
func (ins *Instance) checkServiceCoverage() error {
	provided := make(map[string]bool)
	for _, c := range ins.Caregivers {
		for _, a := range c.Abilities {
			provided[a] = true
		}
	}
	for _, p := range ins.Patients {
		for _, rs := range p.RequiredServices {
			if !provided[rs.Service] {
				return errors.Validation(errors.CodeUncoveredService,
					"患者 %s 需要的服务 %s 没有任何护理员可提供", p.ID, rs.Service)
			}
		}
	}
	return nil
}

// checkIncompatibilities 归一化不兼容护理员集合，并确认每项需求仍有可用护理员
// 归一化是文档化的自愈行为：剔除与所需服务无关的护理员，记警告而非报错
func (ins *Instance) checkIncompatibilities() error {
	for _, p := range ins.Patients {
		if len(p.IncompatibleCaregivers) == 0 {
			continue
		}
		involved := make(map[string]bool)
		for _, c := range ins.Caregivers {
			for _, rs := range p.RequiredServices {
				if c.CanProvide(rs.Service) {
					involved[c.ID] = true
					break
				}
			}
		}
		normalized := p.IncompatibleCaregivers[:0]
		dropped := 0
		for _, id := range p.IncompatibleCaregivers {
			if involved[id] {
				normalized = append(normalized, id)
			} else {
				dropped++
			}
		}
		if dropped > 0 {
			logger.Warn().
				Str("patient", p.ID).
				Int("dropped", dropped).
				Msg("患者的不兼容护理员集合包含与所需服务无关的护理员，已归一化")
			p.IncompatibleCaregivers = normalized
		}
		for _, rs := range p.RequiredServices {
			remaining := 0
			for _, c := range ins.Caregivers {
				if c.CanProvide(rs.Service) && !p.IsIncompatibleWith(c.ID) {
					remaining++
				}
			}
			if remaining == 0 {
				return errors.Validation(errors.CodeNoCompatibleGiver,
					"患者 %s 的服务 %s 没有兼容的护理员（可能全部被排除）", p.ID, rs.Service)
			}
		}
	}
	return nil
}

// checkSynchronizationWindows 检查顺序同步下时间窗宽度不小于最小偏移
func (ins *Instance) checkSynchronizationWindows() error {
	for _, p := range ins.Patients {
		if p.Synchronization == nil || p.Synchronization.Type != SyncSequential {
			continue
		}
		if p.TimeWindow != nil && p.TimeWindow.Width() < p.Synchronization.Distance.Min {
			return errors.Validation(errors.CodeSyncWindow,
				"患者 %s 的时间窗宽度 %d 小于同步最小偏移 %d",
				p.ID, p.TimeWindow.Width(), p.Synchronization.Distance.Min)
		}
	}
	return nil
}

// buildIndexes 校验成功后构建只读查找索引
func (ins *Instance) buildIndexes() {
	ins.departingPointIndex = make(map[string]*DepartingPoint, len(ins.DepartingPoints))
	for _, d := range ins.DepartingPoints {
		ins.departingPointIndex[d.ID] = d
	}
	ins.caregiverIndex = make(map[string]*Caregiver, len(ins.Caregivers))
	for _, c := range ins.Caregivers {
		ins.caregiverIndex[c.ID] = c
	}
	ins.patientIndex = make(map[string]*Patient, len(ins.Patients))
	for _, p := range ins.Patients {
		ins.patientIndex[p.ID] = p
	}
	ins.serviceIndex = make(map[string]*Service, len(ins.Services))
	for _, s := range ins.Services {
		ins.serviceIndex[s.ID] = s
	}
}

// DepartingPoint 按标识查找出发点
func (ins *Instance) DepartingPoint(id string) *DepartingPoint {
	return ins.departingPointIndex[id]
}

// Caregiver 按标识查找护理员
func (ins *Instance) Caregiver(id string) *Caregiver {
	return ins.caregiverIndex[id]
}

// Patient 按标识查找患者
func (ins *Instance) Patient(id string) *Patient {
	return ins.patientIndex[id]
}

// Service 按标识查找服务
func (ins *Instance) Service(id string) *Service {
	return ins.serviceIndex[id]
}

// TravelTime 返回两个位置索引之间的行程时间（分钟）
func (ins *Instance) TravelTime(from, to int) int {
	return ins.Distances.At(from, to)
}

// Signature 返回实例声明字段的内容指纹
// 仅覆盖声明字段，按声明顺序哈希；派生索引不参与
func (ins *Instance) Signature() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	fields := []interface{}{
		ins.Name, ins.Area, ins.Distances,
		ins.DepartingPoints, ins.Caregivers, ins.Patients, ins.Services,
	}
	for _, f := range fields {
		// 编码失败只可能来自不可序列化类型，声明字段不存在该情况
		if err := enc.Encode(f); err != nil {
			fmt.Fprintf(h, "%v", f)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
