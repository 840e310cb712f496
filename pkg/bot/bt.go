package bot

// Status 节点求值结果
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	}
	return "unknown"
}

// Node 每次思考从根节点往下求值一遍
type Node interface {
	Tick(bb *Blackboard) Status
}

// composite 依次求值子节点，碰到不等于 pass 的结果就停下返回它
type composite struct {
	children []Node
	pass     Status
}

func (c composite) Tick(bb *Blackboard) Status {
	for _, child := range c.children {
		if st := child.Tick(bb); st != c.pass {
			return st
		}
	}
	return c.pass
}

// Sequence 子节点全部成功才成功
func Sequence(children ...Node) Node {
	return composite{children: children, pass: StatusSuccess}
}

// Selector 第一个没有失败的子节点决定结果
func Selector(children ...Node) Node {
	return composite{children: children, pass: StatusFailure}
}

// Always 求值子节点但总是报告成功，用于可选的分支
func Always(child Node) Node {
	return Action(func(bb *Blackboard) Status {
		child.Tick(bb)
		return StatusSuccess
	})
}

// Action 叶子动作
type Action func(bb *Blackboard) Status

func (a Action) Tick(bb *Blackboard) Status {
	if a == nil {
		return StatusFailure
	}
	return a(bb)
}

// Condition 叶子条件
type Condition func(bb *Blackboard) bool

func (c Condition) Tick(bb *Blackboard) Status {
	if c == nil || !c(bb) {
		return StatusFailure
	}
	return StatusSuccess
}
