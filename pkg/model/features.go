package model

// Summary 一组数值的 min/avg/max 摘要
type Summary struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// PatientFeatures 患者侧特征
type PatientFeatures struct {
	Total        int     `json:"total"`
	Single       float64 `json:"single"`       // 单服务患者占比
	Double       float64 `json:"double"`       // 双服务患者占比
	Simultaneous int     `json:"simultaneous"` // 同时同步的患者数
	Sequential   int     `json:"sequential"`   // 顺序同步的患者数
}

// Features 实例特征摘要，按需计算，只读且无副作用
type Features struct {
	Patients             PatientFeatures `json:"patients"`
	Caregivers           int             `json:"caregivers"`
	Services             int             `json:"services"`
	CompatibleCaregivers Summary         `json:"compatible_caregivers"`
	TimeWindowsSize      Summary         `json:"time_windows_size"`
	ServiceLength        Summary         `json:"service_length"`
	Distances            Summary         `json:"distances"` // 非对角元素
}

// Features 计算实例特征摘要
func (ins *Instance) Features() *Features {
	f := &Features{
		Caregivers: len(ins.Caregivers),
		Services:   len(ins.Services),
	}
	f.Patients.Total = len(ins.Patients)

	var compatible, windows, lengths []float64
	for _, p := range ins.Patients {
		switch len(p.RequiredServices) {
		case 1:
			f.Patients.Single++
		case 2:
			f.Patients.Double++
			switch p.Synchronization.Type {
			case SyncSimultaneous:
				f.Patients.Simultaneous++
			case SyncSequential:
				f.Patients.Sequential++
			}
		}
		for _, rs := range p.RequiredServices {
			count := 0
			for _, c := range ins.Caregivers {
				if c.CanProvide(rs.Service) && !p.IsIncompatibleWith(c.ID) {
					count++
				}
			}
			compatible = append(compatible, float64(count))
			lengths = append(lengths, float64(rs.ActualDuration()))
		}
		if p.TimeWindow != nil {
			windows = append(windows, float64(p.TimeWindow.Width()))
		}
	}
	if f.Patients.Total > 0 {
		f.Patients.Single /= float64(f.Patients.Total)
		f.Patients.Double /= float64(f.Patients.Total)
	}

	f.CompatibleCaregivers = summarize(compatible)
	f.TimeWindowsSize = summarize(windows)
	f.ServiceLength = summarize(lengths)

	var offDiagonal []float64
	for i, row := range ins.Distances {
		for j, d := range row {
			if i != j {
				offDiagonal = append(offDiagonal, float64(d))
			}
		}
	}
	f.Distances = summarize(offDiagonal)
	return f
}

// summarize 计算 min/avg/max
func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(values))
	return s
}
