package model

import (
	"encoding/json"
	"testing"

	"github.com/shangmen/shangmen/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestCaregiverRoute_UnmarshalJSON(t *testing.T) {
	t.Run("完整路线的判别解码", func(t *testing.T) {
		data := []byte(`{
			"caregiver_id": "c1",
			"locations": [
				{"depot": "d0", "departing_time": 0},
				{"patient": "p1", "service": "wash", "start_service_time": 10, "end_service_time": 40, "arrival_at_patient": 10},
				{"depot": "d0", "arrival_time": 50}
			]
		}`)
		var r CaregiverRoute
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(r.Locations) != 3 {
			t.Fatalf("位置数 = %d, expected 3", len(r.Locations))
		}
		dep, ok := r.Locations[0].(*DepotDeparture)
		if !ok || dep.Depot != "d0" || dep.DepartingTime != 0 {
			t.Errorf("首位置应为出发段, got %+v", r.Locations[0])
		}
		visit, ok := r.Locations[1].(*PatientVisit)
		if !ok || visit.Patient != "p1" || !visit.HasArrival() || visit.Arrival() != 10 {
			t.Errorf("中间位置应为带到达时刻的访问, got %+v", r.Locations[1])
		}
		arr, ok := r.Locations[2].(*DepotArrival)
		if !ok || arr.ArrivalTime != 50 {
			t.Errorf("末位置应为返回段, got %+v", r.Locations[2])
		}
		if !r.IsFull() {
			t.Error("该路线应为完整形态")
		}
	})

	t.Run("部分路线只含访问", func(t *testing.T) {
		data := []byte(`{
			"caregiver_id": "c1",
			"locations": [
				{"patient": "p1", "service": "wash", "start_service_time": 10, "end_service_time": 40}
			]
		}`)
		var r CaregiverRoute
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if r.IsFull() {
			t.Error("该路线应为部分形态")
		}
		if v := r.Visits(); len(v) != 1 || v[0].HasArrival() {
			t.Errorf("应有一次未声明到达时刻的访问, got %+v", v)
		}
	})

	t.Run("无法判别的位置", func(t *testing.T) {
		data := []byte(`{"caregiver_id": "c1", "locations": [{"foo": 1}]}`)
		var r CaregiverRoute
		err := json.Unmarshal(data, &r)
		if !errors.Is(err, errors.CodeRouteShape) {
			t.Errorf("错误码 = %s, expected %s", errors.GetCode(err), errors.CodeRouteShape)
		}
	})

	t.Run("序列化后可重新解码", func(t *testing.T) {
		r := &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&DepotDeparture{Depot: "d0", DepartingTime: 0},
				&PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 10, EndServiceTime: 40, ArrivalAtPatient: intPtr(10)},
				&DepotArrival{Depot: "d0", ArrivalTime: 50},
			},
		}
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var back CaregiverRoute
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(back.Locations) != 3 || !back.IsFull() {
			t.Errorf("重新解码后的路线形态不一致: %+v", back.Locations)
		}
	})
}

func TestCaregiverRoute_Validate(t *testing.T) {
	visit := func(patient string, start, end int) *PatientVisit {
		return &PatientVisit{Patient: patient, Service: "wash",
			StartServiceTime: start, EndServiceTime: end}
	}

	tests := []struct {
		name  string
		route *CaregiverRoute
		code  errors.Code
	}{
		{"缺少护理员标识", &CaregiverRoute{
			Locations: []RouteLocation{visit("p1", 10, 40)},
		}, errors.CodeInvalidInput},
		{"空路线", &CaregiverRoute{
			CaregiverID: "c1",
		}, errors.CodeEmptyRoute},
		{"完整路线没有访问", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&DepotDeparture{Depot: "d0", DepartingTime: 0},
				&DepotArrival{Depot: "d0", ArrivalTime: 50},
			},
		}, errors.CodeRouteShape},
		{"完整路线未以返回段结束", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&DepotDeparture{Depot: "d0", DepartingTime: 0},
				visit("p1", 10, 40),
				visit("p2", 50, 80),
			},
		}, errors.CodeRouteShape},
		{"部分路线混入返回段", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				visit("p1", 10, 40),
				&DepotArrival{Depot: "d0", ArrivalTime: 50},
			},
		}, errors.CodeRouteShape},
		{"访问区间起止颠倒", &CaregiverRoute{
			CaregiverID: "c1",
			Locations:   []RouteLocation{visit("p1", 40, 10)},
		}, errors.CodeRouteChronology},
		{"到达晚于服务开始", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 10, EndServiceTime: 40, ArrivalAtPatient: intPtr(20)},
			},
		}, errors.CodeRouteChronology},
		{"访问顺序颠倒", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				visit("p1", 50, 80),
				visit("p2", 10, 40),
			},
		}, errors.CodeRouteChronology},
		{"返回早于末次访问结束", &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&DepotDeparture{Depot: "d0", DepartingTime: 0},
				visit("p1", 10, 40),
				&DepotArrival{Depot: "d0", ArrivalTime: 30},
			},
		}, errors.CodeRouteChronology},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.route.Validate()
			if err == nil {
				t.Fatal("期望自检失败，实际通过")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("错误码 = %s, expected %s (%v)", errors.GetCode(err), tt.code, err)
			}
		})
	}

	t.Run("合法的完整路线", func(t *testing.T) {
		r := &CaregiverRoute{
			CaregiverID: "c1",
			Locations: []RouteLocation{
				&DepotDeparture{Depot: "d0", DepartingTime: 0},
				visit("p1", 10, 40),
				&DepotArrival{Depot: "d0", ArrivalTime: 50},
			},
		}
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestSolution_Validate(t *testing.T) {
	route := func(id string) *CaregiverRoute {
		return &CaregiverRoute{
			CaregiverID: id,
			Locations: []RouteLocation{
				&PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 10, EndServiceTime: 40},
			},
		}
	}

	t.Run("护理员出现在多条路线", func(t *testing.T) {
		sol := &Solution{Routes: []*CaregiverRoute{route("c1"), route("c1")}}
		err := sol.Validate()
		if !errors.Is(err, errors.CodeDuplicateRoute) {
			t.Errorf("错误码 = %s, expected %s", errors.GetCode(err), errors.CodeDuplicateRoute)
		}
	})

	t.Run("合法解", func(t *testing.T) {
		sol := &Solution{Routes: []*CaregiverRoute{route("c1"), route("c2")}}
		if err := sol.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestSolution_Normalized(t *testing.T) {
	sol := &Solution{Routes: []*CaregiverRoute{{
		CaregiverID: "c1",
		Locations: []RouteLocation{
			&PatientVisit{Patient: "p1", Service: "wash",
				StartServiceTime: 10, EndServiceTime: 40},
		},
	}}}
	if !sol.Normalized() {
		t.Error("无显式到达时刻的解应为 normalized")
	}

	sol.Routes[0].Visits()[0].SetArrival(10)
	if sol.Normalized() {
		t.Error("填充到达时刻后不应再是 normalized")
	}
}

func TestPatientVisit_SetArrival(t *testing.T) {
	v := &PatientVisit{Patient: "p1", Service: "wash",
		StartServiceTime: 20, EndServiceTime: 50, ArrivalAtPatient: intPtr(15)}

	// 已声明的到达时刻不被覆盖
	v.SetArrival(10)
	if v.Arrival() != 15 {
		t.Errorf("Arrival() = %d, expected 15", v.Arrival())
	}

	u := &PatientVisit{Patient: "p1", Service: "wash",
		StartServiceTime: 20, EndServiceTime: 50}
	u.SetArrival(10)
	u.SetArrival(12)
	if u.Arrival() != 10 {
		t.Errorf("Arrival() = %d, expected 10（首次推断生效）", u.Arrival())
	}
}
