package verifier

import (
	"testing"

	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/model"
)

func TestNormalize(t *testing.T) {
	// 复用 verifier_test 的基准实例：d0=0, p1=1, p2=2，任意两地行程 10 分钟
	ins := testInstanceWith(t, nil)

	t.Run("部分路线被拼接为完整路线", func(t *testing.T) {
		route := &model.CaregiverRoute{
			CaregiverID: "c1",
			Locations: []model.RouteLocation{
				&model.PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 30, EndServiceTime: 60},
			},
		}
		if err := Normalize(ins, route); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !route.IsFull() || len(route.Locations) != 3 {
			t.Fatalf("归一化后应为 3 段完整路线, got %d", len(route.Locations))
		}
		// 出发 = 30 − 10，返回 = 60 + 10
		if dep := route.Departure(); dep.Depot != "d0" || dep.DepartingTime != 20 {
			t.Errorf("出发段 = %+v, expected d0@20", dep)
		}
		if arr := route.ArrivalLeg(); arr.Depot != "d0" || arr.ArrivalTime != 70 {
			t.Errorf("返回段 = %+v, expected d0@70", arr)
		}
	})

	t.Run("完整路线为幂等空操作", func(t *testing.T) {
		route := &model.CaregiverRoute{
			CaregiverID: "c1",
			Locations: []model.RouteLocation{
				&model.PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 30, EndServiceTime: 60},
			},
		}
		if err := Normalize(ins, route); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		dep, arr := route.Departure().DepartingTime, route.ArrivalLeg().ArrivalTime

		if err := Normalize(ins, route); err != nil {
			t.Fatalf("重复 Normalize() error = %v", err)
		}
		if len(route.Locations) != 3 ||
			route.Departure().DepartingTime != dep ||
			route.ArrivalLeg().ArrivalTime != arr {
			t.Error("重复归一化改变了路线")
		}
	})

	t.Run("多次访问取首末两端", func(t *testing.T) {
		route := &model.CaregiverRoute{
			CaregiverID: "c2",
			Locations: []model.RouteLocation{
				&model.PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 15, EndServiceTime: 45},
				&model.PatientVisit{Patient: "p2", Service: "med",
					StartServiceTime: 60, EndServiceTime: 80},
			},
		}
		if err := Normalize(ins, route); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		// 出发 = 15 − travel(d0,p1)=10；返回 = 80 + travel(p2,d0)=10
		if dep := route.Departure(); dep.DepartingTime != 5 {
			t.Errorf("出发时刻 = %d, expected 5", dep.DepartingTime)
		}
		if arr := route.ArrivalLeg(); arr.ArrivalTime != 90 {
			t.Errorf("返回时刻 = %d, expected 90", arr.ArrivalTime)
		}
	})

	t.Run("没有访问的路线不可归一化", func(t *testing.T) {
		route := &model.CaregiverRoute{CaregiverID: "c1"}
		err := Normalize(ins, route)
		if !errors.Is(err, errors.CodeEmptyRoute) {
			t.Errorf("错误码 = %s, expected %s", errors.GetCode(err), errors.CodeEmptyRoute)
		}
	})

	t.Run("未知护理员", func(t *testing.T) {
		route := &model.CaregiverRoute{
			CaregiverID: "c9",
			Locations: []model.RouteLocation{
				&model.PatientVisit{Patient: "p1", Service: "wash",
					StartServiceTime: 30, EndServiceTime: 60},
			},
		}
		err := Normalize(ins, route)
		if !errors.Is(err, errors.CodeUnknownCaregiver) {
			t.Errorf("错误码 = %s, expected %s", errors.GetCode(err), errors.CodeUnknownCaregiver)
		}
	})

	t.Run("未知患者", func(t *testing.T) {
		route := &model.CaregiverRoute{
			CaregiverID: "c1",
			Locations: []model.RouteLocation{
				&model.PatientVisit{Patient: "p9", Service: "wash",
					StartServiceTime: 30, EndServiceTime: 60},
			},
		}
		err := Normalize(ins, route)
		if !errors.Is(err, errors.CodeUnknownPatient) {
			t.Errorf("错误码 = %s, expected %s", errors.GetCode(err), errors.CodeUnknownPatient)
		}
	})
}
