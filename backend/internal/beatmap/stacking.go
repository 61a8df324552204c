package beatmap

// calculateStacking 对 [start, end] 区间做两阶段堆叠：
// 先向后扩展区间，把会与区间内对象堆叠的后续对象纳入，再从扩展后的末尾向前扫描。
// 向前扫描时圆圈一直看到列表开头，滑条只看到 start。
func calculateStacking(objs []*HitObject, leniency float64, distance float64, start, end int) {
	for i := start; i <= end; i++ {
		objs[i].StackHeight = 0
		objs[i].StackRoot = ""
	}
	if leniency == 0 {
		return
	}

	extendedEnd := end
	if end < len(objs)-1 {
		for i := end; i >= start; i-- {
			base := i
			for n := base + 1; n < len(objs); n++ {
				baseObj, objN := objs[base], objs[n]
				if objN.StartTime-baseObj.EndTime() > objN.TimePreempt*leniency {
					break
				}
				if baseObj.Position.Distance(objN.Position) < distance ||
					(baseObj.Kind == KindSlider && baseObj.EndPosition().Distance(objN.Position) < distance) {
					base = n
					objN.StackHeight = 0
					objN.StackRoot = ""
				}
			}
			if base > extendedEnd {
				extendedEnd = base
				if extendedEnd == len(objs)-1 {
					break
				}
			}
		}
	}

	extendedStart := start
	for i := extendedEnd; i >= extendedStart; i-- {
		objI := objs[i]
		if objI.StackHeight != 0 || objI.Kind == KindSpinner {
			continue
		}
		threshold := objI.TimePreempt * leniency
		n := i

		switch objI.Kind {
		case KindCircle:
			for n--; n >= 0; n-- {
				objN := objs[n]
				if objN.Kind == KindSpinner {
					continue
				}
				if objI.StartTime-objN.EndTime() > threshold {
					break
				}
				if n < extendedStart && objN.StackRoot == objI.ID {
					extendedStart = n
					objN.StackHeight = 0
					objN.StackRoot = ""
				}
				if objN.Kind == KindSlider && objN.EndPosition().Distance(objI.Position) < distance {
					offset := objI.StackHeight - objN.StackHeight + 1
					for j := n + 1; j <= i; j++ {
						objJ := objs[j]
						if objN.EndPosition().Distance(objJ.Position) < distance {
							objJ.StackHeight -= offset
							objJ.StackRoot = objN.ID
						}
					}
					break
				}
				if objN.Position.Distance(objI.Position) < distance {
					objN.StackHeight = objI.StackHeight + 1
					objN.StackRoot = objI.ID
					objI = objN
				}
			}
		case KindSlider:
			for n--; n >= start; n-- {
				objN := objs[n]
				if objI.StartTime-objN.EndTime() > threshold {
					break
				}
				if objN.EndPosition().Distance(objI.Position) < distance {
					objN.StackHeight = objI.StackHeight + 1
					objI = objN
				}
			}
		}
	}
}
