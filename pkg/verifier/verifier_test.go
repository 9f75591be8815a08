package verifier

import (
	"testing"

	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/model"
)

// testInstanceWith 构造基准实例，经 mutate 调整后完成校验
func testInstanceWith(t *testing.T, mutate func(*model.Instance)) *model.Instance {
	t.Helper()
	ins := &model.Instance{
		Name: "验证用例",
		Distances: model.Matrix{
			{0, 10, 10},
			{10, 0, 10},
			{10, 10, 0},
		},
		DepartingPoints: []*model.DepartingPoint{
			{ID: "d0", DistanceMatrixIndex: 0},
		},
		Caregivers: []*model.Caregiver{
			{ID: "c1", Abilities: []string{"wash"}, DepartingPoint: "d0",
				WorkingShift: &model.TimeWindow{Start: 0, End: 480}},
			{ID: "c2", Abilities: []string{"med", "wash"}, DepartingPoint: "d0",
				WorkingShift: &model.TimeWindow{Start: 0, End: 480}},
		},
		Patients: []*model.Patient{
			{
				ID:                  "p1",
				RequiredServices:    []*model.RequiredService{{Service: "wash"}},
				DistanceMatrixIndex: 1,
				TimeWindow:          &model.TimeWindow{Start: 0, End: 600},
			},
			{
				ID: "p2",
				RequiredServices: []*model.RequiredService{
					{Service: "wash"},
					{Service: "med"},
				},
				DistanceMatrixIndex: 2,
				TimeWindow:          &model.TimeWindow{Start: 0, End: 600},
				Synchronization:     &model.Synchronization{Type: model.SyncSimultaneous},
			},
		},
		Services: []*model.Service{
			{ID: "wash", Type: "hygiene", DefaultDuration: 30},
			{ID: "med", Type: "medical", DefaultDuration: 20},
		},
	}
	if mutate != nil {
		mutate(ins)
	}
	if err := ins.Validate(); err != nil {
		t.Fatalf("基准实例校验失败: %v", err)
	}
	return ins
}

// baseSolution 构造针对基准实例的合法部分解
// c1: p1 wash [10,40) → p2 wash [50,80)；c2: p2 med [50,70)
func baseSolution() *model.Solution {
	return &model.Solution{
		Routes: []*model.CaregiverRoute{
			{
				CaregiverID: "c1",
				Locations: []model.RouteLocation{
					&model.PatientVisit{Patient: "p1", Service: "wash",
						StartServiceTime: 10, EndServiceTime: 40},
					&model.PatientVisit{Patient: "p2", Service: "wash",
						StartServiceTime: 50, EndServiceTime: 80},
				},
			},
			{
				CaregiverID: "c2",
				Locations: []model.RouteLocation{
					&model.PatientVisit{Patient: "p2", Service: "med",
						StartServiceTime: 50, EndServiceTime: 70},
				},
			},
		},
	}
}

func TestVerifier_Check(t *testing.T) {
	ins := testInstanceWith(t, nil)
	sol := baseSolution()

	if err := New(ins).Check(sol); err != nil {
		t.Fatalf("合法解应通过验证: %v", err)
	}

	// 验证成功的后置条件：路线均为完整形态，到达时刻均已填充
	for _, r := range sol.Routes {
		if !r.IsFull() {
			t.Errorf("护理员 %s 的路线验证后应为完整形态", r.CaregiverID)
		}
		for _, v := range r.Visits() {
			if !v.HasArrival() {
				t.Errorf("护理员 %s 访问患者 %s 的到达时刻未填充", r.CaregiverID, v.Patient)
			}
		}
	}

	// 推断出的到达时刻：c1 在 10 到达 p1，40+10=50 到达 p2
	visits := sol.Routes[0].Visits()
	if visits[0].Arrival() != 10 || visits[1].Arrival() != 50 {
		t.Errorf("到达时刻 = %d/%d, expected 10/50", visits[0].Arrival(), visits[1].Arrival())
	}

	// 验证幂等：再跑一次结果不变
	if err := New(ins).Check(sol); err != nil {
		t.Errorf("重复验证应仍然通过: %v", err)
	}
}

func TestVerifier_Check_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Solution)
		code   errors.Code
	}{
		{"访问未知患者", func(sol *model.Solution) {
			sol.Routes[0].Locations[0].(*model.PatientVisit).Patient = "p9"
		}, errors.CodeUnknownPatient},
		{"患者未被覆盖", func(sol *model.Solution) {
			sol.Routes[0].Locations = sol.Routes[0].Locations[1:] // 丢弃 p1 的访问
		}, errors.CodeUncoveredPatient},
		{"提供未被需要的服务", func(sol *model.Solution) {
			sol.Routes[0].Locations[0].(*model.PatientVisit).Service = "med"
		}, errors.CodeUnmetRequirement},
		{"需求没有访问提供", func(sol *model.Solution) {
			sol.Routes = sol.Routes[:1] // 删除 c2 的路线，p2 的 med 无人提供
		}, errors.CodeUnmetRequirement},
		{"需求被重复提供", func(sol *model.Solution) {
			sol.Routes[1].Locations = append(sol.Routes[1].Locations,
				&model.PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 100, EndServiceTime: 130})
		}, errors.CodeConflictingVisits},
		{"服务开始早于可达时刻", func(sol *model.Solution) {
			// c1 于 40 结束 p1，行程 10，最早 50 可达 p2
			sol.Routes[0].Locations[1].(*model.PatientVisit).StartServiceTime = 45
		}, errors.CodeTravelInfeasible},
		{"声明的到达时刻早于可达时刻", func(sol *model.Solution) {
			arrival := 45
			sol.Routes[0].Locations[1].(*model.PatientVisit).ArrivalAtPatient = &arrival
		}, errors.CodeTravelInfeasible},
		{"返回时刻早于可达时刻", func(sol *model.Solution) {
			locations := make([]model.RouteLocation, 0, 4)
			locations = append(locations, &model.DepotDeparture{Depot: "d0", DepartingTime: 0})
			locations = append(locations, sol.Routes[0].Locations...)
			// 末次访问 80 结束，行程 10，最早 90 返回
			locations = append(locations, &model.DepotArrival{Depot: "d0", ArrivalTime: 85})
			sol.Routes[0].Locations = locations
		}, errors.CodeTravelInfeasible},
		{"服务时长不足", func(sol *model.Solution) {
			// med 要求 20 分钟
			sol.Routes[1].Locations[0].(*model.PatientVisit).EndServiceTime = 65
		}, errors.CodeServiceTooShort},
		{"出发早于班次开始", func(sol *model.Solution) {
			// 首次访问 5 开始，推出 −5 出发，早于班次开始 0
			first := sol.Routes[0].Locations[0].(*model.PatientVisit)
			first.StartServiceTime = 5
			first.EndServiceTime = 35
		}, errors.CodeShiftViolation},
		{"同时同步开始时刻不一致", func(sol *model.Solution) {
			visit := sol.Routes[1].Locations[0].(*model.PatientVisit)
			visit.StartServiceTime = 55
			visit.EndServiceTime = 75
		}, errors.CodeSyncViolation},
		{"双服务由同一护理员提供", func(sol *model.Solution) {
			sol.Routes[0].Locations = sol.Routes[0].Locations[:1] // c1 只访问 p1
			sol.Routes[1].Locations = []model.RouteLocation{
				&model.PatientVisit{Patient: "p2", Service: "med",
					StartServiceTime: 50, EndServiceTime: 70},
				&model.PatientVisit{Patient: "p2", Service: "wash",
					StartServiceTime: 70, EndServiceTime: 100},
			}
		}, errors.CodeSyncViolation},
		{"服务超出护理员资质", func(sol *model.Solution) {
			// c1 不会 med；交换两名护理员在 p2 的分工
			sol.Routes[0].Locations[1].(*model.PatientVisit).Service = "med"
			sol.Routes[0].Locations[1].(*model.PatientVisit).EndServiceTime = 70
			sol.Routes[1].Locations[0].(*model.PatientVisit).Service = "wash"
			sol.Routes[1].Locations[0].(*model.PatientVisit).EndServiceTime = 80
		}, errors.CodeQualification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := testInstanceWith(t, nil)
			sol := baseSolution()
			tt.mutate(sol)
			err := New(ins).Check(sol)
			if err == nil {
				t.Fatal("期望验证失败，实际通过")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), tt.code, err)
			}
		})
	}
}

func TestVerifier_Check_Sequential(t *testing.T) {
	sequential := func(ins *model.Instance) {
		ins.Patients[1].Synchronization = &model.Synchronization{
			Type:     model.SyncSequential,
			Distance: &model.DistanceRange{Min: 10, Max: 30},
		}
	}

	// 首项服务为声明顺序中的 wash
	solution := func(medStart int) *model.Solution {
		return &model.Solution{
			Routes: []*model.CaregiverRoute{
				{
					CaregiverID: "c1",
					Locations: []model.RouteLocation{
						&model.PatientVisit{Patient: "p1", Service: "wash",
							StartServiceTime: 10, EndServiceTime: 40},
						&model.PatientVisit{Patient: "p2", Service: "wash",
							StartServiceTime: 100, EndServiceTime: 130},
					},
				},
				{
					CaregiverID: "c2",
					Locations: []model.RouteLocation{
						&model.PatientVisit{Patient: "p2", Service: "med",
							StartServiceTime: medStart, EndServiceTime: medStart + 20},
					},
				},
			},
		}
	}

	t.Run("偏移落在区间内", func(t *testing.T) {
		ins := testInstanceWith(t, sequential)
		if err := New(ins).Check(solution(120)); err != nil {
			t.Errorf("偏移 20 ∈ [10,30]，应通过: %v", err)
		}
	})

	t.Run("第二项早于首项", func(t *testing.T) {
		ins := testInstanceWith(t, sequential)
		err := New(ins).Check(solution(95))
		if !errors.Is(err, errors.CodeSyncViolation) {
			t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), errors.CodeSyncViolation, err)
		}
	})

	t.Run("偏移超过上限", func(t *testing.T) {
		ins := testInstanceWith(t, sequential)
		err := New(ins).Check(solution(140))
		if !errors.Is(err, errors.CodeSyncViolation) {
			t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), errors.CodeSyncViolation, err)
		}
	})
}

func TestVerifier_Check_TimeWindow(t *testing.T) {
	ins := testInstanceWith(t, func(ins *model.Instance) {
		ins.Patients[0].TimeWindow = &model.TimeWindow{Start: 20, End: 600}
	})
	sol := baseSolution() // p1 的访问 10 开始，早于窗口开始 20

	err := New(ins).Check(sol)
	if !errors.Is(err, errors.CodeTimeWindow) {
		t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), errors.CodeTimeWindow, err)
	}
}

func TestVerifier_Check_UnknownCaregiver(t *testing.T) {
	ins := testInstanceWith(t, nil)
	sol := baseSolution()
	sol.Routes[0].CaregiverID = "c9"

	err := New(ins).Check(sol)
	if !errors.Is(err, errors.CodeUnknownCaregiver) {
		t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), errors.CodeUnknownCaregiver, err)
	}
}
