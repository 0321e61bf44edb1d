package tickmath

import "github.com/holiman/uint256"

// ratioLadder[i] holds 1.0001^(-2^(i-42)) in unsigned Q128.128, so bit i of an
// absolute X42 tick selects the multiplier for 2^(i-42) ticks. Generated at
// 120-digit decimal precision and truncated; entries 41 and up coincide with the
// constants of the canonical getSqrtRatioAtTick ladder.
var ratioLadder = [62]*uint256.Int{
	uint256.MustFromHex("0xfffffffffffffe5c972f9a7ffff63f1e"),
	uint256.MustFromHex("0xfffffffffffffcb92e5f34ffffef2d5c"),
	uint256.MustFromHex("0xfffffffffffff9725cbe69ffffe9173a"),
	uint256.MustFromHex("0xfffffffffffff2e4b97cd3fffffd2079"),
	uint256.MustFromHex("0xffffffffffffe5c972f9a80000a60903"),
	uint256.MustFromHex("0xffffffffffffcb92e5f3500003fb324c"),
	uint256.MustFromHex("0xffffffffffff9725cbe6a00012b2e5ac"),
	uint256.MustFromHex("0xffffffffffff2e4b97cd40005057cfaa"),
	uint256.MustFromHex("0xfffffffffffe5c972f9a80014c77b09b"),
	uint256.MustFromHex("0xfffffffffffcb92e5f350005480fa64c"),
	uint256.MustFromHex("0xfffffffffff9725cbe6a00154ca060f2"),
	uint256.MustFromHex("0xfffffffffff2e4b97cd400558b451348"),
	uint256.MustFromHex("0xffffffffffe5c972f9a80156de9b6c21"),
	uint256.MustFromHex("0xffffffffffcb92e5f350055cdd7bee7e"),
	uint256.MustFromHex("0xffffffffff9725cbe6a015763c0c35f0"),
	uint256.MustFromHex("0xffffffffff2e4b97cd4055de7c69cfa0"),
	uint256.MustFromHex("0xfffffffffe5c972f9a8157850a192dfb"),
	uint256.MustFromHex("0xfffffffffcb92e5f35055e2a594894ae"),
	uint256.MustFromHex("0xfffffffff9725cbe6a1578d5c6e9faa3"),
	uint256.MustFromHex("0xfffffffff2e4b97cd455e3afdf36adab"),
	uint256.MustFromHex("0xffffffffe5c972f9a9578f7103f3d730"),
	uint256.MustFromHex("0xffffffffcb92e5f3555e3f271dde6feb"),
	uint256.MustFromHex("0xffffffff9725cbe6b578ff62927e7736"),
	uint256.MustFromHex("0xffffffff2e4b97cd95e403167737d5a0"),
	uint256.MustFromHex("0xfffffffe5c972f9bd7901771f0ff95b6"),
	uint256.MustFromHex("0xfffffffcb92e5f3a5e4073f5b9614280"),
	uint256.MustFromHex("0xfffffff9725cbe7f7901fc21395e4b58"),
	uint256.MustFromHex("0xfffffff2e4b97d29e408488cd5c701f2"),
	uint256.MustFromHex("0xffffffe5c972faff9021cddd7c92593b"),
	uint256.MustFromHex("0xffffffcb92e5f8ae40886b9c640cddc2"),
	uint256.MustFromHex("0xffffff9725cbfc190222fd4faa8a4f37"),
	uint256.MustFromHex("0xffffff2e4b9823240885c78496e99272"),
	uint256.MustFromHex("0xfffffe5c9730f21021c466ec0ef33088"),
	uint256.MustFromHex("0xfffffcb92e64934084394fd40439866c"),
	uint256.MustFromHex("0xfffff9725cd3e301f99dbb33e768dab8"),
	uint256.MustFromHex("0xfffff2e4b9d2b8072b30830ce906f245"),
	uint256.MustFromHex("0xffffe5c974513816d07a45923e9b3155"),
	uint256.MustFromHex("0xffffcb92eb51902c5b8383974a3382c8"),
	uint256.MustFromHex("0xffff9725e15f9f3a32abf4907f33c4db"),
	uint256.MustFromHex("0xffff2e4bedb1312ee0c76bfe72caead6"),
	uint256.MustFromHex("0xfffe5c988729e6ec2f62506345b8b4c9"),
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e2139"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcb"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941ccf"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926643"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254bf"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52860"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3052"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a3"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e53"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f2"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d8"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e4"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f6"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa5"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc8"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe97"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	uint256.MustFromHex("0x149b34ee7ac262"),
}

