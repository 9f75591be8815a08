// Package verifier 提供路线归一化与解的交叉验证
package verifier

import (
	"github.com/shangmen/shangmen/pkg/errors"
	"github.com/shangmen/shangmen/pkg/model"
)

// Normalize 将部分路线（仅访问序列）升级为完整路线
// 出发时刻 = 首次访问开始时刻 − 出发点到首位患者的行程时间（最晚可行出发，不留余量）
// 返回时刻 = 末次访问结束时刻 + 末位患者到出发点的行程时间
// 原地拼接出发/返回段；完整路线上为幂等空操作
func Normalize(ins *model.Instance, route *model.CaregiverRoute) error {
	if route.IsFull() {
		return nil
	}
	visits := route.Visits()
	if len(visits) == 0 {
		return errors.Validation(errors.CodeEmptyRoute,
			"护理员 %s 的路线没有任何访问，无法归一化", route.CaregiverID)
	}

	caregiver := ins.Caregiver(route.CaregiverID)
	if caregiver == nil {
		return errors.Verification(errors.CodeUnknownCaregiver,
			"路线引用的护理员 %s 不在实例中", route.CaregiverID)
	}
	depot := ins.DepartingPoint(caregiver.DepartingPoint)

	first := ins.Patient(visits[0].Patient)
	if first == nil {
		return errors.Verification(errors.CodeUnknownPatient,
			"护理员 %s 的首次访问引用了未知患者 %s", route.CaregiverID, visits[0].Patient)
	}
	last := ins.Patient(visits[len(visits)-1].Patient)
	if last == nil {
		return errors.Verification(errors.CodeUnknownPatient,
			"护理员 %s 的末次访问引用了未知患者 %s", route.CaregiverID, visits[len(visits)-1].Patient)
	}

	departure := &model.DepotDeparture{
		Depot:         depot.ID,
		DepartingTime: visits[0].StartServiceTime - ins.TravelTime(depot.DistanceMatrixIndex, first.DistanceMatrixIndex),
	}
	arrival := &model.DepotArrival{
		Depot:       depot.ID,
		ArrivalTime: visits[len(visits)-1].EndServiceTime + ins.TravelTime(last.DistanceMatrixIndex, depot.DistanceMatrixIndex),
	}

	locations := make([]model.RouteLocation, 0, len(route.Locations)+2)
	locations = append(locations, departure)
	locations = append(locations, route.Locations...)
	locations = append(locations, arrival)
	route.Locations = locations
	return nil
}
