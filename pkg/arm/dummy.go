package arm

import "fmt"

// Dummy returns an arm that just logs, for rigs with no robot attached.
func Dummy() Interface {
	return &dummyArm{}
}

type dummyArm struct {
	pose Pose
}

func (d *dummyArm) Enable() error {
	fmt.Println("Dummy arm: enable")
	return nil
}

func (d *dummyArm) Disable() error {
	fmt.Println("Dummy arm: disable")
	return nil
}

func (d *dummyArm) ClearError() error {
	return nil
}

func (d *dummyArm) Move(values []int) error {
	cmd, err := jogCommand(values)
	if err != nil {
		return err
	}
	if cmd == "" {
		return d.StopJog()
	}
	fmt.Printf("Dummy arm: %s\n", cmd)
	return nil
}

func (d *dummyArm) StopJog() error {
	fmt.Println("Dummy arm: stop jog")
	return nil
}

func (d *dummyArm) ServoP(p Pose) error {
	d.pose = p
	fmt.Printf("Dummy arm: servo to %+v\n", p)
	return nil
}

func (d *dummyArm) GetPose() (Pose, error) {
	return d.pose, nil
}

func (d *dummyArm) Close() error {
	return nil
}
